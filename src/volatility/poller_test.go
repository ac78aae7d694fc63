package volatility

import (
	"sync"
	"testing"
	"time"

	"aitrader/src/registry"
)

type fakeFetcher struct {
	mu    sync.Mutex
	price float64
}

func (f *fakeFetcher) GetTicker(instID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, nil
}

func (f *fakeFetcher) setPrice(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = p
}

type fakeWaker struct {
	mu    sync.Mutex
	wakes []string
}

func (w *fakeWaker) Wake(instID string, source registry.Source, price *float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakes = append(w.wakes, instID)
}

func (w *fakeWaker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.wakes)
}

func TestPoller_WakesPastThreshold(t *testing.T) {
	reg := registry.New([]string{"BTC-USDT-SWAP"}, time.Hour)
	fetcher := &fakeFetcher{price: 100}
	waker := &fakeWaker{}

	cfg := Config{
		ThresholdBps: 80,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  1,
		RetryBackoff: time.Millisecond,
	}
	poller := NewPoller(cfg, "BTC-USDT-SWAP", fetcher, reg, waker)

	// seed the baseline at 100 via one poll tick
	poller.pollOnce()
	fetcher.setPrice(101) // 100bps move, above threshold
	poller.pollOnce()

	if waker.count() != 1 {
		t.Fatalf("expected exactly 1 wake once price moved past threshold, got %d", waker.count())
	}
}

func TestPoller_StaysQuietBelowThreshold(t *testing.T) {
	reg := registry.New([]string{"BTC-USDT-SWAP"}, time.Hour)
	fetcher := &fakeFetcher{price: 100}
	waker := &fakeWaker{}

	cfg := Config{
		ThresholdBps: 80,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  1,
		RetryBackoff: time.Millisecond,
	}
	poller := NewPoller(cfg, "BTC-USDT-SWAP", fetcher, reg, waker)

	poller.pollOnce()
	fetcher.setPrice(100.01) // 1bps move
	poller.pollOnce()

	if waker.count() != 0 {
		t.Fatalf("expected no wake for a sub-threshold move, got %d", waker.count())
	}
}
