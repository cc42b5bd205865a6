package valueobject

import (
	"fmt"
	"strings"

	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

const DefaultCurrency = "THB"

// Money хранит сумму в минимальных единицах валюты.
type Money struct {
	AmountCents int64
	Currency    string
}

func NewMoney(amountCents int64, currency string) (Money, error) {
	if amountCents <= 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "некорректный код валюты")
	}
	return Money{AmountCents: amountCents, Currency: currency}, nil
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.AmountCents/100, m.AmountCents%100, m.Currency)
}
