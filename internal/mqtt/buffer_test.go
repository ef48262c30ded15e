package mqtt

import "testing"

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxPushAndDrain(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.push(queuedMsg{topic: "t", payload: []byte{byte(i)}})
	}
	if o.len() != 5 {
		t.Fatalf("len: got %d, want 5", o.len())
	}

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
	if o.drain() != nil {
		t.Error("expected nil from second drain")
	}
}

func TestOutboxOverflowKeepsNewest(t *testing.T) {
	o := newOutbox(5)
	for i := 0; i < 8; i++ {
		o.push(queuedMsg{topic: "t", payload: []byte{byte(i)}})
	}
	if o.dropped != 3 {
		t.Errorf("dropped: got %d, want 3", o.dropped)
	}

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		want := byte(i + 3)
		if got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
}

func TestOutboxReuseAfterDrain(t *testing.T) {
	o := newOutbox(3)
	for i := 0; i < 4; i++ {
		o.push(queuedMsg{payload: []byte{byte(i)}})
	}
	o.drain()
	if o.warned {
		t.Error("drain should reset the overflow warning")
	}

	o.push(queuedMsg{payload: []byte{42}})
	got := o.drain()
	if len(got) != 1 || got[0].payload[0] != 42 {
		t.Errorf("unexpected drain after reuse: %+v", got)
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.push(queuedMsg{payload: []byte{1}})
	o.push(queuedMsg{payload: []byte{2}})

	got := o.drain()
	if len(got) != 1 || got[0].payload[0] != 2 {
		t.Errorf("expected only newest message, got %+v", got)
	}
}

func TestOutboxPreservesFlags(t *testing.T) {
	o := newOutbox(2)
	o.push(queuedMsg{topic: "sys", qos: 1, retained: true})

	got := o.drain()
	if got[0].topic != "sys" || got[0].qos != 1 || !got[0].retained {
		t.Errorf("flags lost: %+v", got[0])
	}
}
