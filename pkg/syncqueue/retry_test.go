package syncqueue_test

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

func TestRetryController_Decide(t *testing.T) {
	t.Parallel()

	rc := syncqueue.NewRetryController(noJitter)
	now := epoch

	op := func(retries, maxRetries int) *syncqueue.Operation {
		return &syncqueue.Operation{Status: syncqueue.StatusProcessing, RetryCount: retries, MaxRetries: maxRetries}
	}

	t.Run("success completes and clears the error", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(op(2, 3), syncqueue.Success(), now)
		assert.Equal(t, syncqueue.StatusCompleted, d.To)
		assert.Equal(t, 2, d.RetryCount)
		assert.True(t, d.ClearError)

		m := d.Mutation()
		assert.True(t, m.ClearError)
		assert.Nil(t, m.NextAttemptAt)
	})

	t.Run("permanent failure keeps the retry count", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(op(0, 3), syncqueue.PermanentFailure("insufficient_funds"), now)
		assert.Equal(t, syncqueue.StatusFailed, d.To)
		assert.Equal(t, 0, d.RetryCount)
		assert.Equal(t, "insufficient_funds", d.LastError)
		assert.False(t, d.Exhausted)
	})

	t.Run("transient failure schedules a retry", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(op(1, 3), syncqueue.TransientFailure("502 from stock service"), now)
		require.True(t, d.Retry())
		assert.Equal(t, 2, d.RetryCount)
		assert.Equal(t, now.Add(2*time.Second), d.NextAttemptAt)
		assert.Equal(t, "502 from stock service", d.LastError)

		m := d.Mutation()
		require.NotNil(t, m.RetryCount)
		assert.Equal(t, 2, *m.RetryCount)
		require.NotNil(t, m.NextAttemptAt)
		assert.Equal(t, now.Add(2*time.Second), *m.NextAttemptAt)
	})

	t.Run("transient failure with no budget left fails", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(op(2, 2), syncqueue.TransientFailure("timeout"), now)
		assert.Equal(t, syncqueue.StatusFailed, d.To)
		assert.Equal(t, 2, d.RetryCount)
		assert.True(t, d.Exhausted)
		assert.Contains(t, d.LastError, syncqueue.ErrRetryBudgetExhausted.Error())
		assert.Contains(t, d.LastError, "timeout")
	})

	t.Run("zero budget fails on the first transient error", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(op(0, 0), syncqueue.TransientFailure("down"), now)
		assert.Equal(t, syncqueue.StatusFailed, d.To)
		assert.Equal(t, 0, d.RetryCount)
	})
}

func TestRetryController_ReasonIsStorable(t *testing.T) {
	t.Parallel()

	rc := syncqueue.NewRetryController(noJitter)

	t.Run("permanent reason with a split rune", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(&syncqueue.Operation{MaxRetries: 3}, syncqueue.PermanentFailure("paiement refus\xc3"), epoch)
		assert.Equal(t, syncqueue.StatusFailed, d.To)
		assert.True(t, utf8.ValidString(d.LastError))
		assert.Equal(t, "paiement refus\uFFFD", d.LastError)
	})

	t.Run("transient reason with NUL bytes", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(&syncqueue.Operation{MaxRetries: 3}, syncqueue.TransientFailure("stock\x00 down"), epoch)
		assert.Equal(t, syncqueue.StatusPending, d.To)
		assert.Equal(t, "stock down", d.LastError)
	})

	t.Run("exhausted budget", func(t *testing.T) {
		t.Parallel()

		d := rc.Decide(&syncqueue.Operation{RetryCount: 1, MaxRetries: 1}, syncqueue.TransientFailure("\xff\xfe"), epoch)
		require.True(t, d.Exhausted)
		assert.True(t, utf8.ValidString(d.LastError))
	})
}

func TestRetryController_Reclaim(t *testing.T) {
	t.Parallel()

	rc := syncqueue.NewRetryController(noJitter)

	d := rc.Reclaim(&syncqueue.Operation{RetryCount: 0, MaxRetries: 3}, epoch)
	assert.Equal(t, syncqueue.StatusPending, d.To)
	assert.Equal(t, 1, d.RetryCount)
	assert.Equal(t, syncqueue.ErrAbandonedOperation.Error(), d.LastError)

	d = rc.Reclaim(&syncqueue.Operation{RetryCount: 3, MaxRetries: 3}, epoch)
	assert.Equal(t, syncqueue.StatusFailed, d.To)
	assert.True(t, d.Exhausted)
}
