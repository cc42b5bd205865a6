package worker

import (
	"context"
	"time"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
)

const sweepBatch = 100

// Sweeper периодически истекает запросы, для которых отложенная задача потерялась.
type Sweeper struct {
	engine   *booking.Engine
	interval time.Duration
}

func NewSweeper(engine *booking.Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				logger.Get().WithError(err).Error("sweeper: проход завершился ошибкой")
			} else if n > 0 {
				logger.Get().WithField("expired", n).Info("sweeper: запросы истекли")
			}
		}
	}
}

// Sweep выполняет один проход и возвращает число истёкших запросов.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	uow := s.engine.Executor().UnitOfWork()
	ids, err := uow.ListExpiredRequests(ctx, s.engine.Executor().Now(), sweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := s.engine.Expire(ctx, id, entity.System()); err != nil {
			if apperror.IsTransition(err) {
				continue
			}
			logger.WithBooking(id).WithError(err).Warn("sweeper: не удалось истечь запрос")
			continue
		}
		expired++
	}
	return expired, nil
}
