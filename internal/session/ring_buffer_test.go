package session

import (
	"fmt"
	"testing"
)

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer[string](10)
	if got := rb.ReadAll(); len(got) != 0 {
		t.Errorf("expected empty buffer, got %d entries", len(got))
	}
	if rb.Len() != 0 {
		t.Errorf("expected Len 0, got %d", rb.Len())
	}
}

func TestRingBuffer_PartialFill(t *testing.T) {
	rb := NewRingBuffer[string](10)
	for i := 0; i < 5; i++ {
		rb.Write(fmt.Sprintf("line-%d", i))
	}

	entries := rb.ReadAll()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, e := range entries {
		expected := fmt.Sprintf("line-%d", i)
		if e != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e)
		}
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer[string](5)
	for i := 0; i < 8; i++ {
		rb.Write(fmt.Sprintf("line-%d", i))
	}

	entries := rb.ReadAll()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	// Should have 3,4,5,6,7 (oldest dropped).
	for i, e := range entries {
		expected := fmt.Sprintf("line-%d", i+3)
		if e != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e)
		}
	}
}

func TestRingBuffer_ExactCapacity(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 0; i < 3; i++ {
		rb.Write(i)
	}

	entries := rb.ReadAll()
	if len(entries) != 3 || rb.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e != i {
			t.Errorf("entry %d: expected %d, got %d", i, i, e)
		}
	}
}

func TestRingBuffer_ZeroCapacityClamped(t *testing.T) {
	rb := NewRingBuffer[int](0)
	rb.Write(1)
	rb.Write(2)
	if got := rb.ReadAll(); len(got) != 1 || got[0] != 2 {
		t.Errorf("expected [2], got %v", got)
	}
}
