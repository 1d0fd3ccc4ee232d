package buffer

import "testing"

func TestWrite_AssignsMonotonicIDs(t *testing.T) {
	b := New()

	got := b.Write("a")
	if want := "0|a"; got != want {
		t.Errorf("Write(1) = %q, want %q", got, want)
	}

	got = b.Write("b")
	if want := "1|b"; got != want {
		t.Errorf("Write(2) = %q, want %q", got, want)
	}

	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
	if b.NextID() != 2 {
		t.Errorf("NextID() = %d, want 2", b.NextID())
	}
}

func TestWrite_HexIsUppercaseUnpadded(t *testing.T) {
	b := New()
	for i := 0; i < 16; i++ {
		got := b.Write("x")
		if i == 10 {
			if want := "A|x"; got != want {
				t.Errorf("Write(11) = %q, want %q", got, want)
			}
		}
	}
	got := b.Write("y")
	if want := "10|y"; got != want {
		t.Errorf("Write(17) = %q, want %q", got, want)
	}
}

func TestDiscard_DropsUpToBoundary(t *testing.T) {
	b := New()
	b.Write("a")
	b.Write("b")
	b.Write("c")

	n, err := b.Discard(2)
	if err != nil {
		t.Fatalf("Discard(2) unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Discard(2) dropped %d, want 2", n)
	}
	if b.Len() != 1 {
		t.Errorf("Len() after discard = %d, want 1", b.Len())
	}
}

func TestDiscard_ReducesLenByOne(t *testing.T) {
	b := New()
	b.Write("x") // id 0

	if _, err := b.Discard(1); err != nil {
		t.Fatalf("Discard(1) unexpected error: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestDiscard_OutOfRange(t *testing.T) {
	b := New()
	b.Write("a")
	b.Write("b")

	if _, err := b.Discard(99); err == nil {
		t.Error("Discard(99) expected RangeError, got nil")
	}

	if _, err := b.Discard(1); err != nil {
		t.Fatalf("Discard(1) unexpected error: %v", err)
	}
	// floor is now 1; discarding below it is out of range.
	if _, err := b.Discard(0); err == nil {
		t.Error("Discard(0) below floor expected RangeError, got nil")
	}
}

func TestGetMessagesFrom_ReturnsInOrder(t *testing.T) {
	b := New()
	b.Write("a")
	b.Write("b")
	b.Write("c")
	b.Discard(1)

	msgs, err := b.GetMessagesFrom(1)
	if err != nil {
		t.Fatalf("GetMessagesFrom(1) unexpected error: %v", err)
	}
	want := []string{"1|b", "2|c"}
	if len(msgs) != len(want) {
		t.Fatalf("GetMessagesFrom(1) = %v, want %v", msgs, want)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i], want[i])
		}
	}
}

func TestGetMessagesFrom_OutOfRange(t *testing.T) {
	b := New()
	b.Write("a")

	if _, err := b.GetMessagesFrom(5); err == nil {
		t.Error("GetMessagesFrom(5) expected RangeError, got nil")
	}
}

func TestWriteDiscardReconnectContinue_ZeroResends(t *testing.T) {
	b := New()
	b.Write("a")
	b.Write("b")
	nextID := b.NextID()

	// Server acked everything; CONTINUE names the next id it hasn't seen.
	if _, err := b.Discard(nextID); err != nil {
		t.Fatalf("Discard(%d) unexpected error: %v", nextID, err)
	}

	msgs, err := b.GetMessagesFrom(nextID)
	if err != nil {
		t.Fatalf("GetMessagesFrom(%d) unexpected error: %v", nextID, err)
	}
	if len(msgs) != 0 {
		t.Errorf("GetMessagesFrom(%d) = %v, want zero resends", nextID, msgs)
	}
}
