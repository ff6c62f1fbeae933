package mqtt

import (
	"testing"
)

func push(rb *ringBuffer, from, to int) {
	for i := from; i < to; i++ {
		rb.push(bufferedMsg{topic: Topic, payload: []byte{byte(i)}})
	}
}

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.payload[0]
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(4)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferOrder(t *testing.T) {
	tests := []struct {
		name   string
		pushed int
		want   []byte
	}{
		{"partial", 3, []byte{0, 1, 2}},
		{"full", 5, []byte{0, 1, 2, 3, 4}},
		{"overflow keeps newest", 8, []byte{3, 4, 5, 6, 7}},
		{"wraps twice", 12, []byte{7, 8, 9, 10, 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(5)
			push(rb, 0, tt.pushed)
			got := payloads(rb.drainAll())
			if string(got) != string(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if rb.len() != 0 {
				t.Errorf("len after drain: %d", rb.len())
			}
		})
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	push(rb, 0, 7)
	rb.drainAll()

	push(rb, 10, 12)
	got := payloads(rb.drainAll())
	if string(got) != string([]byte{10, 11}) {
		t.Errorf("got %v, want [10 11]", got)
	}
	if rb.dropped != 0 {
		t.Errorf("dropped not reset: %d", rb.dropped)
	}
}

func TestRingBufferCountsDrops(t *testing.T) {
	rb := newRingBuffer(2)
	push(rb, 0, 5)
	if rb.dropped != 3 {
		t.Errorf("dropped: got %d, want 3", rb.dropped)
	}
	if rb.len() != 2 {
		t.Errorf("len: got %d, want 2", rb.len())
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})
	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("got %d items", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || string(m.payload) != "x" || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
