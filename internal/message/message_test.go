package message

import (
	"regexp"
	"testing"
)

var phoneRe = regexp.MustCompile(`^\d{3}-\d{3}-\d{4}$`)

func validateMessage(t *testing.T, msg Message, minLen, maxLen int) {
	t.Helper()
	if n := len(msg.Body); n < minLen || n > maxLen {
		t.Fatalf("body length = %d, want in [%d, %d]", n, minLen, maxLen)
	}
	if len(msg.Destination) != 12 {
		t.Fatalf("destination length = %d, want 12", len(msg.Destination))
	}
	if !phoneRe.MatchString(msg.Destination) {
		t.Fatalf("destination %q does not look like DDD-DDD-DDDD", msg.Destination)
	}
}

func TestRandomMessage(t *testing.T) {
	t.Parallel()
	g := NewGenerator(1, 100, 100)
	validateMessage(t, g.Message(), 100, 100)
}

func TestMessageLengthBounds(t *testing.T) {
	t.Parallel()
	g := NewGenerator(2, 5, 9)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		msg := g.Message()
		validateMessage(t, msg, 5, 9)
		seen[len(msg.Body)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected varied body lengths, got %v", seen)
	}
}

func TestMessageBatch(t *testing.T) {
	t.Parallel()
	g := NewGenerator(3, 100, 100)
	batch := g.Batch(25)
	if batch.Len() != 25 {
		t.Fatalf("batch len = %d, want 25", batch.Len())
	}
	if batch.ID == "" {
		t.Fatal("batch ID should be set")
	}
	for _, msg := range batch.Messages {
		validateMessage(t, msg, 100, 100)
	}
	if other := g.Batch(1); other.ID == batch.ID {
		t.Fatalf("batch IDs should differ, both %q", batch.ID)
	}
}

func TestGeneratorClampsBounds(t *testing.T) {
	t.Parallel()
	g := NewGenerator(4, 0, -3)
	msg := g.Message()
	if len(msg.Body) != 1 {
		t.Fatalf("body length = %d, want 1", len(msg.Body))
	}
	if b := g.Batch(-1); b.Len() != 0 {
		t.Fatalf("negative size batch len = %d, want 0", b.Len())
	}
}
