package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

// KeyValueStore abstracts the persisted storage behind the countdown, so the
// timer is testable without a real backend.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// Countdown is the session clock. It restores the remaining time from the
// store on construction, decrements once per interval, persists after every
// decrement, and fires the zero callback exactly once when the count reaches
// zero. Reaching zero also removes the persisted value so the next session
// starts from the full duration.
type Countdown struct {
	store    KeyValueStore
	key      string
	interval time.Duration
	onZero   func()

	mu        sync.Mutex
	remaining int
	fired     bool

	ticks chan int
}

// NewCountdown builds a countdown over total. A persisted value under key
// takes precedence over total, so a reload resumes mid-session.
func NewCountdown(ctx context.Context, store KeyValueStore, key string, total time.Duration, onZero func()) *Countdown {
	remaining := int(total / time.Second)
	if raw, ok, err := store.Get(ctx, key); err == nil && ok {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			remaining = v
		}
	}
	return &Countdown{
		store:     store,
		key:       key,
		interval:  time.Second,
		onZero:    onZero,
		remaining: remaining,
		ticks:     make(chan int, 8),
	}
}

// Remaining returns the current remaining seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Clock formats the remaining time as HH:MM:SS.
func (c *Countdown) Clock() string {
	s := c.Remaining()
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// Ticks returns a channel carrying the remaining seconds after each
// decrement. Stale values are dropped for slow readers.
func (c *Countdown) Ticks() <-chan int {
	return c.ticks
}

// Run drives the periodic decrement until the countdown fires or ctx is
// cancelled. Cancellation tears down the tick with no further side effects.
func (c *Countdown) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick(ctx) {
				return
			}
		}
	}
}

// tick performs one decrement-persist-maybe-fire step. It returns false once
// the countdown has fired. The zero callback runs only after the decrement
// that produced zero has been persisted and the key removed.
func (c *Countdown) tick(ctx context.Context) bool {
	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return false
	}
	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}
	remaining := c.remaining
	done := remaining == 0
	if done {
		c.fired = true
	}
	c.mu.Unlock()

	if err := c.store.Set(ctx, c.key, strconv.Itoa(remaining)); err != nil {
		log.Printf("countdown: persist failed: %v", err)
	}
	select {
	case c.ticks <- remaining:
	default:
		select {
		case <-c.ticks:
		default:
		}
		c.ticks <- remaining
	}
	if !done {
		return true
	}
	if err := c.store.Del(ctx, c.key); err != nil {
		log.Printf("countdown: clear failed: %v", err)
	}
	if c.onZero != nil {
		c.onZero()
	}
	return false
}
