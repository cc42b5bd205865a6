package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

type RequestInput struct {
	ProfessionalID uuid.UUID
	PriceCents     int64
	Currency       string
	// PaymentSource - токен карты или источника у кастодиана.
	PaymentSource string
}

// Request создаёт бронирование (draft -> requested) и авторизует оплату кандидата.
func (e *Engine) Request(ctx context.Context, actor entity.Actor, in RequestInput) (*entity.Booking, error) {
	candidateID, ok := actor.UserID()
	if !ok || actor.Role() != entity.RoleCandidate {
		return nil, apperror.NewTransitionError(uuid.Nil, string(vo.BookingStatusDraft), string(vo.BookingStatusRequested), "бронирование создаёт только кандидат")
	}
	if in.ProfessionalID == uuid.Nil || in.ProfessionalID == candidateID {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный профессионал")
	}
	if in.PaymentSource == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указан источник оплаты")
	}
	price, err := vo.NewMoney(in.PriceCents, in.Currency)
	if err != nil {
		return nil, err
	}

	now := e.now()
	draft := entity.NewBooking(candidateID, in.ProfessionalID, price, now)
	var authorizedRef string

	var result *entity.Booking
	err = e.inTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateBooking(ctx, draft); err != nil {
			return err
		}
		b, err := Run(ctx, e.exec, tx, Transition{
			BookingID: draft.ID,
			Target:    vo.BookingStatusRequested,
			Actor:     actor,
			Reason:    "booking_requested",
		}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
			ref, err := e.custodian.Authorize(ctx, price, in.PaymentSource)
			if err != nil {
				return nil, err
			}
			authorizedRef = ref

			payment := &entity.Payment{
				ID:               uuid.New(),
				BookingID:        b.ID,
				AmountGrossCents: price.AmountCents,
				PlatformFeeCents: settlement.PlatformFee(price.AmountCents),
				Currency:         price.Currency,
				ExternalRef:      ref,
				Status:           vo.PaymentStatusAuthorized,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return nil, err
			}

			b.ExpiresAt = timePtr(now.Add(settlement.RequestTTL))

			out.Annotate("payment_ref", ref)
			out.Annotate("amount_cents", price.AmountCents)
			out.Notify(b.ProfessionalID, "booking.requested", map[string]any{"booking_id": b.ID})
			out.Schedule(jobs.Key(jobs.TypeBookingExpire, b.ID), jobs.New(jobs.TypeBookingExpire, b.ID), settlement.RequestTTL)
			return b, nil
		})
		result = b
		return err
	})
	if err != nil {
		e.releaseDanglingAuthorization(ctx, draft.ID, authorizedRef)
		return nil, err
	}
	return result, nil
}

// releaseDanglingAuthorization снимает холд, если локальная транзакция не прошла после авторизации.
func (e *Engine) releaseDanglingAuthorization(ctx context.Context, bookingID uuid.UUID, ref string) {
	if ref == "" || e.tx != nil {
		return
	}
	if err := e.custodian.CancelAuthorization(context.WithoutCancel(ctx), ref); err != nil {
		logger.WithBooking(bookingID).WithFields(logrus.Fields{
			"payment_ref": ref,
			"error":       err.Error(),
		}).Error("не удалось снять авторизацию после отката бронирования")
	}
}
