package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

func newTestCustodian(t *testing.T) *OmiseCustodian {
	t.Helper()
	c, err := NewOmiseCustodian("pkey_test_5consult", "skey_test_5consult")
	require.NoError(t, err)
	return c
}

// Проверки до обращения к API: ни один из вызовов не уходит в сеть.
func TestOmiseCustodian_RejectsInvalidInput(t *testing.T) {
	c := newTestCustodian(t)
	ctx := context.Background()
	thb := valueobject.Money{AmountCents: 5000, Currency: "THB"}

	_, err := c.Authorize(ctx, thb, "")
	assert.ErrorIs(t, err, ErrEmptyReference)

	_, err = c.Authorize(ctx, valueobject.Money{AmountCents: 0, Currency: "THB"}, "tokn_test")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.ErrorIs(t, c.Capture(ctx, ""), ErrEmptyReference)
	assert.ErrorIs(t, c.CancelAuthorization(ctx, ""), ErrEmptyReference)

	_, err = c.Refund(ctx, "chrg_test", -10)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = c.Transfer(ctx, 4000, "", "chrg_test")
	assert.ErrorIs(t, err, ErrNoDestination)

	_, err = c.Transfer(ctx, 4000, "recp_test", "")
	assert.ErrorIs(t, err, ErrEmptyReference)

	_, err = c.SettledFee(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestOmiseCustodian_CancelledContext(t *testing.T) {
	c := newTestCustodian(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Capture(ctx, "chrg_test")
	assert.ErrorIs(t, err, context.Canceled)
}
