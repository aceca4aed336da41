package intent

import (
	"testing"

	"github.com/zhouzirui/commerce-router/internal/model/service"
)

func seedClassifier() *Classifier {
	return NewClassifier(service.Seed())
}

func TestClassifyKeywords(t *testing.T) {
	c := seedClassifier()
	cases := map[string]string{
		"I want pizza":                  "dominos",
		"Order me a PEPPERONI please":   "dominos",
		"Reserve a table for two":       "opentable",
		"I need an Uber to the airport": "uber",
		"What's the weather?":           General,
		"":                              General,
	}
	for msg, want := range cases {
		if got := c.Classify(msg); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", msg, got, want)
		}
	}
}

func TestClassifyRegistryOrderBreaksTies(t *testing.T) {
	c := seedClassifier()
	if got := c.Classify("book a table and order pizza"); got != "dominos" {
		t.Fatalf("expected dominos to win the tie, got %s", got)
	}
	if got := c.Classify("pizza for dinner"); got != "dominos" {
		t.Fatalf("expected dominos to win the tie, got %s", got)
	}

	reversed := service.Seed()
	reversed[0], reversed[1] = reversed[1], reversed[0]
	if got := NewClassifier(reversed).Classify("pizza for dinner"); got != "opentable" {
		t.Fatalf("expected opentable once it is registered first, got %s", got)
	}
}

func TestClassifyIsDeterministicAndTotal(t *testing.T) {
	c := seedClassifier()
	valid := map[string]bool{General: true}
	for _, d := range service.Seed() {
		valid[d.Tag] = true
	}

	messages := []string{"hungry!", "dinner at 8", "schedule ride", "hello", "Domino's delivery", "commute"}
	for _, msg := range messages {
		first := c.Classify(msg)
		if !valid[first] {
			t.Fatalf("Classify(%q) returned unknown tag %s", msg, first)
		}
		for i := 0; i < 20; i++ {
			if got := c.Classify(msg); got != first {
				t.Fatalf("Classify(%q) changed from %s to %s", msg, first, got)
			}
		}
	}
}

func TestMatchReportsKeyword(t *testing.T) {
	tag, kw := seedClassifier().Match("Can I get a taxi?")
	if tag != "uber" || kw != "taxi" {
		t.Fatalf("unexpected match %s/%s", tag, kw)
	}
}
