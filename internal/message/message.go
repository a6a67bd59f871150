// Package message defines the simulated SMS payloads moved through the broker
// and a random generator for them.
package message

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// Message is a single outbound SMS. It is never mutated after creation.
type Message struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// Batch is the unit moved through the broker.
//
// ID is for tracing only; it plays no part in ordering or dedup.
type Batch struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// Len returns the number of messages in the batch.
func (b Batch) Len() int { return len(b.Messages) }

const (
	digits = "0123456789"
	// printable mirrors Python's string.printable (digits, letters, punctuation, whitespace).
	printable = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~ \t\n\r\x0b\x0c"
)

// Generator produces random messages. It is not safe for concurrent use;
// give each producer its own Generator.
type Generator struct {
	rng    *rand.Rand
	minLen int
	maxLen int
}

// NewGenerator returns a generator whose bodies have a length in [minLen, maxLen].
// Non-positive bounds are clamped to 1 and maxLen is raised to minLen if needed.
func NewGenerator(seed int64, minLen, maxLen int) *Generator {
	if minLen <= 0 {
		minLen = 1
	}
	if maxLen < minLen {
		maxLen = minLen
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		minLen: minLen,
		maxLen: maxLen,
	}
}

// Message returns one random message addressed to a US-style number (DDD-DDD-DDDD).
func (g *Generator) Message() Message {
	n := g.minLen
	if g.maxLen > g.minLen {
		n += g.rng.Intn(g.maxLen - g.minLen + 1)
	}
	return Message{
		Destination: g.phoneNumber(),
		Body:        g.randString(n, printable),
	}
}

// Batch returns a batch of size random messages with a fresh ID.
func (g *Generator) Batch(size int) Batch {
	if size < 0 {
		size = 0
	}
	msgs := make([]Message, size)
	for i := range msgs {
		msgs[i] = g.Message()
	}
	return Batch{ID: uuid.NewString(), Messages: msgs}
}

func (g *Generator) phoneNumber() string {
	var b strings.Builder
	b.Grow(12)
	b.WriteString(g.randString(3, digits))
	b.WriteByte('-')
	b.WriteString(g.randString(3, digits))
	b.WriteByte('-')
	b.WriteString(g.randString(4, digits))
	return b.String()
}

func (g *Generator) randString(n int, charset string) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = charset[g.rng.Intn(len(charset))]
	}
	return string(buf)
}
