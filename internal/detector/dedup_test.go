package detector

import (
	"fmt"
	"testing"
	"time"
)

func TestSeenSetRecordsAndReports(t *testing.T) {
	s := newSeenSet(time.Minute, 10)
	if s.Seen("sig1") {
		t.Fatal("first sighting must not report seen")
	}
	if !s.Seen("sig1") {
		t.Fatal("second sighting must report seen")
	}
	if s.Seen("sig2") {
		t.Fatal("different signature must not report seen")
	}
}

func TestSeenSetExpiresAfterTTL(t *testing.T) {
	s := newSeenSet(time.Minute, 10)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	s.Seen("sig1")
	now = now.Add(2 * time.Minute)
	if s.Seen("sig1") {
		t.Fatal("expired signature must not report seen")
	}
}

func TestSeenSetEvictsOldestOverCap(t *testing.T) {
	s := newSeenSet(time.Hour, 3)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		s.Seen(fmt.Sprintf("sig%d", i))
	}

	if got := s.len(); got > 3 {
		t.Fatalf("set size %d over cap 3", got)
	}
	if s.Seen("sig0") {
		t.Fatal("oldest signature should have been evicted")
	}
	if !s.Seen("sig4") {
		t.Fatal("newest signature should be retained")
	}
}
