package web

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/treadmill-pod/internal/history"
)

// RunsJSON is the envelope served at /runs.json.
type RunsJSON struct {
	Runs []RunJSON `json:"runs"`
}

// RunJSON is one completed run.
type RunJSON struct {
	ID              string  `json:"id"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	DurationSeconds float64 `json:"duration_seconds"`
	Strides         uint32  `json:"strides"`
	DistanceM       float64 `json:"distance_m"`
	PeakSpeed       uint32  `json:"peak_speed"`
	PeakSpeedMPS    float64 `json:"peak_speed_mps"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func formatRuns(runs []history.Run, speedUnit uint32) []byte {
	out := RunsJSON{Runs: make([]RunJSON, 0, len(runs))}
	for _, r := range runs {
		rj := RunJSON{
			ID:              r.ID.String(),
			Start:           r.Start.UTC().Format(time.RFC3339),
			End:             r.End.UTC().Format(time.RFC3339),
			DurationSeconds: r.Duration().Seconds(),
			Strides:         r.Strides,
			DistanceM:       round3(float64(r.DistanceMM) / 1000),
			PeakSpeed:       r.PeakSpeed,
		}
		if speedUnit != 0 {
			rj.PeakSpeedMPS = round3(float64(r.PeakSpeed) / float64(speedUnit))
		}
		out.Runs = append(out.Runs, rj)
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return data
}
