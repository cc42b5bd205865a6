// Package payment - адаптер платёжного кастодиана на Omise.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/logger"
)

var (
	ErrEmptyReference   = errors.New("payment: пустой идентификатор платежа")
	ErrNoDestination    = errors.New("payment: не указан получатель перевода")
	ErrInvalidAmount    = errors.New("payment: сумма должна быть положительной")
	ErrChargeNotSettled = errors.New("payment: платёж ещё не рассчитан")
)

// OmiseCustodian держит средства кандидата через авторизацию карты без списания.
type OmiseCustodian struct {
	client *omise.Client
}

func NewOmiseCustodian(publicKey, secretKey string) (*OmiseCustodian, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &OmiseCustodian{client: client}, nil
}

func (c *OmiseCustodian) do(ctx context.Context, result interface{}, op interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Do(result, op)
}

// Authorize создаёт charge с capture=false; деньги холдируются на карте.
func (c *OmiseCustodian) Authorize(ctx context.Context, amount valueobject.Money, source string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("omise authorize: %w", ErrEmptyReference)
	}
	if amount.AmountCents <= 0 {
		return "", ErrInvalidAmount
	}
	charge := &omise.Charge{}
	err := c.do(ctx, charge, &operations.CreateCharge{
		Amount:      amount.AmountCents,
		Currency:    strings.ToLower(amount.Currency),
		Card:        source,
		DontCapture: true,
	})
	if err != nil {
		return "", fmt.Errorf("omise authorize: %w", err)
	}
	logger.Get().WithFields(logrus.Fields{
		"charge_id": charge.ID,
		"status":    charge.Status,
	}).Info("omise: charge авторизован")
	return charge.ID, nil
}

func (c *OmiseCustodian) Capture(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("omise capture: %w", ErrEmptyReference)
	}
	charge := &omise.Charge{}
	if err := c.do(ctx, charge, &operations.CaptureCharge{ChargeID: ref}); err != nil {
		return fmt.Errorf("omise capture %s: %w", ref, err)
	}
	return nil
}

// CancelAuthorization снимает холд (reverse) без списания.
func (c *OmiseCustodian) CancelAuthorization(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("omise reverse: %w", ErrEmptyReference)
	}
	charge := &omise.Charge{}
	if err := c.do(ctx, charge, &operations.ReverseCharge{ChargeID: ref}); err != nil {
		return fmt.Errorf("omise reverse %s: %w", ref, err)
	}
	return nil
}

func (c *OmiseCustodian) Refund(ctx context.Context, ref string, amountCents int64) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("omise refund: %w", ErrEmptyReference)
	}
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}
	refund := &omise.Refund{}
	if err := c.do(ctx, refund, &operations.CreateRefund{ChargeID: ref, Amount: amountCents}); err != nil {
		return "", fmt.Errorf("omise refund %s: %w", ref, err)
	}
	return refund.ID, nil
}

// Transfer переводит средства на recipient профессионала. Omise списывает перевод с баланса
// аккаунта, поэтому исходный charge должен быть рассчитан; его id пишется в лог для сверки.
func (c *OmiseCustodian) Transfer(ctx context.Context, amountCents int64, destination, sourceCharge string) (string, error) {
	if destination == "" {
		return "", ErrNoDestination
	}
	if sourceCharge == "" {
		return "", fmt.Errorf("omise transfer: исходный charge: %w", ErrEmptyReference)
	}
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}
	transfer := &omise.Transfer{}
	if err := c.do(ctx, transfer, &operations.CreateTransfer{Amount: amountCents, Recipient: destination}); err != nil {
		return "", fmt.Errorf("omise transfer: %w", err)
	}
	logger.Get().WithFields(logrus.Fields{
		"transfer_id":   transfer.ID,
		"recipient":     destination,
		"source_charge": sourceCharge,
		"amount":        amountCents,
	}).Info("omise: перевод создан")
	return transfer.ID, nil
}

// SettledFee - фактическая комиссия эквайринга с НДС по рассчитанному charge.
func (c *OmiseCustodian) SettledFee(ctx context.Context, ref string) (int64, error) {
	if ref == "" {
		return 0, fmt.Errorf("omise retrieve: %w", ErrEmptyReference)
	}
	charge := &omise.Charge{}
	if err := c.do(ctx, charge, &operations.RetrieveCharge{ChargeID: ref}); err != nil {
		return 0, fmt.Errorf("omise retrieve %s: %w", ref, err)
	}
	if !charge.Paid {
		return 0, ErrChargeNotSettled
	}
	return charge.Fee + charge.FeeVat, nil
}
