package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Delay: time.Millisecond, Multiplier: 1.0}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_Exhausted(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func() error {
		calls++
		return boom
	})

	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
}

func TestDo_RetryIf(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	policy := fastPolicy(5)
	policy.RetryIf = func(err error) bool { return !errors.Is(err, fatal) }

	err := Do(context.Background(), policy, func() error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls, "non-retryable error stops immediately")
	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastPolicy(3), func() error { return errors.New("never retried") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastPolicy(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "verdict", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "verdict", got)
}

func TestPolicy_BackoffCapped(t *testing.T) {
	p := Policy{Delay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond, Multiplier: 10}
	assert.LessOrEqual(t, p.backoff(5), 150*time.Millisecond)
}
