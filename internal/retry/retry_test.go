package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	n, err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("want success, got %v", err)
	}
	if n != 3 || calls != 3 {
		t.Errorf("want 3 attempts, got n=%d calls=%d", n, calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	n, err := Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("want errFlaky, got %v", err)
	}
	if n != 4 || calls != 4 {
		t.Errorf("want 4 attempts, got n=%d calls=%d", n, calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()
	calls := 0
	n, err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("want unwrapped errFlaky, got %v", err)
	}
	if n != 1 || calls != 1 {
		t.Errorf("want a single attempt, got n=%d calls=%d", n, calls)
	}
}

func TestDo_CallTimeoutAppliesPerAttempt(t *testing.T) {
	t.Parallel()
	p := fastPolicy(2)
	p.CallTimeout = 10 * time.Millisecond

	n, err := Do(context.Background(), p, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if n != 2 {
		t.Errorf("want 2 attempts, got %d", n)
	}
}

func TestDo_StopsWhenCallerCancels(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, fastPolicy(10), func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	if err == nil {
		t.Fatal("want an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("want no retries after cancellation, got %d calls", calls)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	t.Parallel()
	p := Policy{}.withDefaults()
	if p.Attempts != 3 || p.Initial != 200*time.Millisecond || p.Max != 2*time.Second {
		t.Errorf("unexpected defaults: %+v", p)
	}
}
