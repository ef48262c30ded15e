package web

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/sweeney/treadmill-pod/internal/mqtt"
	"github.com/sweeney/treadmill-pod/internal/pace"
	"github.com/sweeney/treadmill-pod/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"eventOrNone": func(s string) string {
		if s == "" {
			return "NONE"
		}
		return s
	},
	"perUnit": func(v, unit uint32) string {
		if unit == 0 {
			return "0"
		}
		return strconv.FormatFloat(float64(v)/float64(unit), 'f', 3, 64)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Treadmill Pod</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.moving { color: green; font-weight: bold; }
.stopped { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1 id="title" data-topic="{{.Topic}}">Treadmill Pod{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Pace</h2>
<table>
<tr><th>State</th><td id="state" class="{{if .Moving}}moving{{else}}stopped{{end}}">{{if .Moving}}MOVING{{else}}STOPPED{{end}}</td></tr>
<tr><th>Speed</th><td><span id="speed">{{.Pace.Speed}}</span> (<span id="speed-mps">{{perUnit .Pace.Speed .Config.SpeedUnit}}</span> m/s)</td></tr>
<tr><th>Distance</th><td><span id="distance">{{.Distance}}</span> (<span id="distance-m">{{perUnit .Distance .Config.DistanceUnit}}</span> m)</td></tr>
<tr><th>Strides</th><td id="strides">{{.Pace.StrideCount}}</td></tr>
<tr><th>Last event</th><td id="last-event">{{eventOrNone (printf "%s" .Last.Event)}}</td></tr>
<tr><th>Ready</th><td>{{if .Referenced}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Watchdog</h2>
<table>
<tr><th>Armed</th><td>{{if .Pace.WatchdogArmed}}yes ({{.Pace.WatchdogPeriod.Milliseconds}}ms){{else}}no{{end}}</td></tr>
<tr><th>Decays</th><td>{{.Decays}}</td></tr>
</table>

<h2>Edges</h2>
<table>
<tr><th>Total</th><td>{{.Counts.Edges}}</td></tr>
<tr><th>Ticks</th><td>{{.Counts.Ticks}}</td></tr>
<tr><th>Bounces</th><td>{{.Counts.Bounces}}</td></tr>
<tr><th>Ignored</th><td>{{.Counts.Ignored}}</td></tr>
<tr><th>Dropped</th><td>{{.Dropped}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Belt</th><td>{{.Config.BeltLengthMM}}mm</td></tr>
<tr><th>Pin</th><td>{{.Config.Pin}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>Serial</th><td>{{if .Config.SerialPort}}{{.Config.SerialPort}}{{else}}disabled{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a>{{if .Config.HistoryPath}} | <a href="/runs.json">Runs</a>{{end}}</p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = document.getElementById("title").dataset.topic;
  var dot = document.getElementById("live-dot");

  function set(id, v) {
    document.getElementById(id).textContent = v;
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.pod) {
        set("speed", msg.pod.speed);
        set("speed-mps", msg.pod.speed_mps);
        set("distance", msg.pod.distance);
        set("distance-m", msg.pod.distance_m);
        set("strides", msg.pod.strides);
        set("last-event", msg.pod.event);
        var el = document.getElementById("state");
        el.textContent = msg.pod.speed > 0 ? "MOVING" : "STOPPED";
        el.className = msg.pod.speed > 0 ? "moving" : "stopped";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Distance uint32
		Topic    string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Distance: pace.Rescale(snap.Pace.DistanceAccumulator, 1000, snap.Config.DistanceUnit),
		Topic:    mqtt.TopicsFor(snap.Config.TopicPrefix).Telemetry,
	}
	indexTmpl.Execute(w, data)
}
