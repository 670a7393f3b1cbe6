package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_FillsDefaults(t *testing.T) {
	c := Config{JitterFactor: -1}
	c.validate()
	assert.Equal(t, 100*time.Millisecond, c.InitialDelay)
	assert.Equal(t, 30*time.Second, c.MaxDelay)
	assert.Equal(t, 2.0, c.Multiplier)
	assert.Equal(t, 0.0, c.JitterFactor)
}

func TestConfig_Validate_ClampsJitterFactorAboveOne(t *testing.T) {
	c := Config{JitterFactor: 5}
	c.validate()
	assert.Equal(t, 1.0, c.JitterFactor)
}

func TestConfig_Validate_KeepsValidValues(t *testing.T) {
	c := Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 3, JitterFactor: 0.5}
	c.validate()
	assert.Equal(t, 10*time.Millisecond, c.InitialDelay)
	assert.Equal(t, time.Second, c.MaxDelay)
	assert.Equal(t, 3.0, c.Multiplier)
	assert.Equal(t, 0.5, c.JitterFactor)
}

func TestCalculateDelay_ExponentialGrowthNoJitter(t *testing.T) {
	c := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2.0}

	assert.Equal(t, 100*time.Millisecond, c.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, c.calculateDelay(1))
	assert.Equal(t, 400*time.Millisecond, c.calculateDelay(2))
}

func TestCalculateDelay_CapsAtMaxDelay(t *testing.T) {
	c := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2.0}

	assert.Equal(t, 300*time.Millisecond, c.calculateDelay(5))
}

func TestDo_SucceedsOnFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond, JitterFactor: 0})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Config{MaxRetries: 5, InitialDelay: time.Millisecond, JitterFactor: 0})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorAfterExhaustingRetries(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond, JitterFactor: 0})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_RetryIfFalseShortCircuits(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errors.New("not retryable")
	}, Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		RetryIf:      func(error) bool { return false },
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextAlreadyCancelledReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func() error {
		calls++
		return nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo_OnRetryCallbackInvokedBeforeEachRetry(t *testing.T) {
	attempts := []int{}
	calls := 0
	_ = Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("retry me")
		}
		return nil
	}, Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		OnRetry:      func(attempt int, err error, delay time.Duration) { attempts = append(attempts, attempt) },
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithResult_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestDoWithResult_ReturnsZeroValueOnExhaustion(t *testing.T) {
	result, err := DoWithResult(context.Background(), func() (string, error) {
		return "ignored", errors.New("boom")
	}, Config{MaxRetries: 2, InitialDelay: time.Millisecond})

	assert.Error(t, err)
	assert.Equal(t, "", result)
}

type retryableErr struct{ retryable bool }

func (e *retryableErr) Error() string   { return "retryable err" }
func (e *retryableErr) Retryable() bool { return e.retryable }

type temporaryErr struct{ temporary bool }

func (e *temporaryErr) Error() string   { return "temp err" }
func (e *temporaryErr) Temporary() bool { return e.temporary }

func TestIsRetryable_NilErrorIsFalse(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_UsesRetryableErrorInterface(t *testing.T) {
	assert.True(t, IsRetryable(&retryableErr{retryable: true}))
	assert.False(t, IsRetryable(&retryableErr{retryable: false}))
}

func TestIsRetryable_FallsBackToTemporaryInterface(t *testing.T) {
	assert.True(t, IsRetryable(&temporaryErr{temporary: true}))
	assert.False(t, IsRetryable(&temporaryErr{temporary: false}))
}

func TestIsRetryable_DefaultsToTrueForPlainError(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("plain")))
}

func TestRetryIfTemporary(t *testing.T) {
	assert.True(t, RetryIfTemporary(&temporaryErr{temporary: true}))
	assert.False(t, RetryIfTemporary(&temporaryErr{temporary: false}))
	assert.False(t, RetryIfTemporary(errors.New("plain")))
}

func TestRetryIfNotContext(t *testing.T) {
	assert.False(t, RetryIfNotContext(context.Canceled))
	assert.False(t, RetryIfNotContext(context.DeadlineExceeded))
	assert.True(t, RetryIfNotContext(errors.New("network blip")))
}

func TestPermanent_WrapsAndUnwraps(t *testing.T) {
	base := errors.New("invalid input")
	wrapped := Permanent(base)

	var pe *PermanentError
	require.ErrorAs(t, wrapped, &pe)
	assert.False(t, pe.Retryable())
	assert.Equal(t, base.Error(), pe.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestPermanent_NilPassesThrough(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestTemporary_WrapsAndUnwraps(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := Temporary(base)

	var te *TemporaryError
	require.ErrorAs(t, wrapped, &te)
	assert.True(t, te.Retryable())
	assert.True(t, te.Temporary())
	assert.Equal(t, base.Error(), te.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestTemporary_NilPassesThrough(t *testing.T) {
	assert.NoError(t, Temporary(nil))
}

func TestRetryer_DoDelegatesToConfiguredConfig(t *testing.T) {
	r := NewRetryer(Config{MaxRetries: 2, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryer_WithOnRetryInvokesCallback(t *testing.T) {
	var seen error
	r := NewRetryer(Config{MaxRetries: 2, InitialDelay: time.Millisecond}).
		WithOnRetry(func(attempt int, err error, delay time.Duration) { seen = err })

	boom := errors.New("boom")
	_ = r.Do(context.Background(), func() error { return boom })

	assert.Equal(t, boom, seen)
}

func TestRetryer_WithRetryIfShortCircuits(t *testing.T) {
	calls := 0
	r := NewRetryer(Config{MaxRetries: 5, InitialDelay: time.Millisecond}).
		WithRetryIf(func(error) bool { return false })

	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnce_RunsOperationExactlyOnce(t *testing.T) {
	calls := 0
	err := Once(context.Background(), func() error {
		calls++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnce_ContextCancelledSkipsOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Once(ctx, func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryN_LimitsAttemptsToGivenCount(t *testing.T) {
	calls := 0
	err := RetryN(context.Background(), func() error {
		calls++
		return errors.New("fail")
	}, 2)

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
