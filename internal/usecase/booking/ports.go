package booking

import (
	"context"
	"time"

	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/jobs"
)

// PaymentCustodian - внешний держатель средств кандидата.
type PaymentCustodian interface {
	Authorize(ctx context.Context, amount valueobject.Money, source string) (string, error)
	Capture(ctx context.Context, ref string) error
	CancelAuthorization(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string, amountCents int64) (string, error)
	// Transfer переводит средства профессионалу; sourceCharge связывает перевод с исходным платежом.
	Transfer(ctx context.Context, amountCents int64, destination, sourceCharge string) (string, error)
	SettledFee(ctx context.Context, ref string) (int64, error)
}

// Scheduler ставит задачи в очередь. Повтор с тем же ключом ничего не делает.
type Scheduler interface {
	Enqueue(ctx context.Context, key string, job jobs.Job) error
	Schedule(ctx context.Context, key string, job jobs.Job, delay time.Duration) error
}
