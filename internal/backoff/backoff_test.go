package backoff

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/edgetask/internal/testutil/testlog"
)

func TestNextDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := Config{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := Next(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := Next(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := Next(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := Next(cfg, 8, nil); got != 5*time.Second {
		t.Fatalf("attempt8 should cap, got=%v", got)
	}
}

func TestNextJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := Config{InitialDelay: time.Second, Multiplier: 2.0, MaxDelay: 10 * time.Second, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for attempt := 2; attempt < 6; attempt++ {
		base := Next(Config{InitialDelay: cfg.InitialDelay, Multiplier: cfg.Multiplier, MaxDelay: cfg.MaxDelay}, attempt, nil)
		got := Next(cfg, attempt, rng)
		if got < base/2 || got > base*3/2 {
			t.Fatalf("attempt=%d jittered delay %v outside [%v,%v]", attempt, got, base/2, base*3/2)
		}
	}
}

func TestSleepStopsOnDone(t *testing.T) {
	testlog.Start(t)
	done := make(chan struct{})
	close(done)
	if Sleep(done, time.Hour) {
		t.Fatalf("expected early stop")
	}
	if !Sleep(nil, 0) {
		t.Fatalf("zero delay must not block")
	}
}
