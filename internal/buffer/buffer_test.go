package buffer

import "testing"

func TestMessageBufferFIFOOrder(t *testing.T) {
	b := New()
	b.Append(Envelope{Message: 1, Sender: "a"})
	b.Append(Envelope{Message: 2, Sender: "b"})
	b.Append(Envelope{Message: 3, Sender: "c"})

	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}

	var seen []any
	b.ForEach(func(e Envelope) { seen = append(seen, e.Message) })
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("unexpected visit order: %v", seen)
	}

	for i, want := range []int{1, 2, 3} {
		env, ok := b.DropHead()
		if !ok {
			t.Fatalf("drop %d: expected ok", i)
		}
		if env.Message != want {
			t.Fatalf("drop %d: expected %v, got %v", i, want, env.Message)
		}
	}

	if !b.IsEmpty() || b.Len() != 0 {
		t.Fatalf("expected empty buffer after draining, len=%d", b.Len())
	}
	if _, ok := b.DropHead(); ok {
		t.Fatalf("expected DropHead on empty buffer to report !ok")
	}
}

func TestMessageBufferEmptyRepresentation(t *testing.T) {
	b := New()
	b.Append(Envelope{Message: "x"})
	b.DropHead()

	if b.head != nil || b.tail != nil || b.size != 0 {
		t.Fatalf("expected head/tail nil and size 0 after draining last element")
	}
}
