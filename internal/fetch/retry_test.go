// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testPolicy = Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testPolicy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	lastErr := errors.New("still broken")
	var waits []time.Duration
	err := DoNotify(context.Background(), testPolicy, func(ctx context.Context) error {
		calls++
		return lastErr
	}, func(err error, wait time.Duration) {
		waits = append(waits, wait)
	})
	if err != lastErr {
		t.Errorf("got %v, want %v", err, lastErr)
	}
	if calls != 5 {
		t.Errorf("got %d calls, want 5", calls)
	}

	// No wait after the final attempt; delays double each time.
	want := []time.Duration{1, 2, 4, 8}
	if len(waits) != len(want) {
		t.Fatalf("got waits %v, want %d of them", waits, len(want))
	}
	for i, w := range want {
		if waits[i] != w*time.Millisecond {
			t.Errorf("wait %d: got %v, want %v", i, waits[i], w*time.Millisecond)
		}
	}
}

func TestDoPermanent(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	err := Do(context.Background(), testPolicy, func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	})
	if !errors.Is(err, fatal) {
		t.Errorf("got %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestDoTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: 5 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrStalled) {
		t.Errorf("got %v, want ErrStalled", err)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

// An attempt that keeps making progress may take longer than
// the timeout, as long as it never stalls for that long.
func TestDoAliveExtendsAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: 40 * time.Millisecond}
	calls := 0
	start := time.Now()
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		for i := 0; i < 10; i++ {
			time.Sleep(10 * time.Millisecond)
			if err := ctx.Err(); err != nil {
				return err
			}
			Alive(ctx)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed < p.Timeout {
		t.Errorf("attempt took %v, expected it to outlive the timeout", elapsed)
	}
}

func TestAliveOutsideDo(t *testing.T) {
	Alive(context.Background())
}

func TestDoCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, testPolicy, func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("got %d calls, want 0", calls)
	}
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 0}
	_ = Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}
