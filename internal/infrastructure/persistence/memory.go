package persistence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

var errTxDone = errors.New("persistence: транзакция уже завершена")

// memoryTables - все строки, ключ - booking id (payout_destinations - professional id).
type memoryTables struct {
	bookings     map[uuid.UUID]*entity.Booking
	payments     map[uuid.UUID]*entity.Payment
	payouts      map[uuid.UUID]*entity.Payout
	disputes     map[uuid.UUID]*entity.Dispute
	feedback     map[uuid.UUID]*entity.CallFeedback
	destinations map[uuid.UUID]string
	audit        []entity.AuditRecord
}

func newMemoryTables() memoryTables {
	return memoryTables{
		bookings:     map[uuid.UUID]*entity.Booking{},
		payments:     map[uuid.UUID]*entity.Payment{},
		payouts:      map[uuid.UUID]*entity.Payout{},
		disputes:     map[uuid.UUID]*entity.Dispute{},
		feedback:     map[uuid.UUID]*entity.CallFeedback{},
		destinations: map[uuid.UUID]string{},
	}
}

// MemoryUnitOfWork - хранилище в памяти с построчными блокировками и отложенной записью.
// Используется в тестах и при STORAGE_DRIVER=memory.
type MemoryUnitOfWork struct {
	mu     sync.RWMutex
	tables memoryTables
	locks  map[uuid.UUID]chan struct{}
}

func NewMemoryUnitOfWork() *MemoryUnitOfWork {
	return &MemoryUnitOfWork{
		tables: newMemoryTables(),
		locks:  map[uuid.UUID]chan struct{}{},
	}
}

// SetPayoutDestination сохраняет реквизиты профессионала.
func (u *MemoryUnitOfWork) SetPayoutDestination(professionalID uuid.UUID, destination string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tables.destinations[professionalID] = destination
}

func (u *MemoryUnitOfWork) rowLock(id uuid.UUID) chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	l, ok := u.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		u.locks[id] = l
	}
	return l
}

func (u *MemoryUnitOfWork) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{uow: u, staged: newMemoryTables(), held: map[uuid.UUID]chan struct{}{}}, nil
}

func (u *MemoryUnitOfWork) LoadSnapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	b, ok := u.tables.bookings[bookingID]
	if !ok {
		return nil, apperror.ErrBookingNotFound
	}
	return &entity.Snapshot{
		Booking:  b.Clone(),
		Payment:  u.tables.payments[bookingID].Clone(),
		Payout:   u.tables.payouts[bookingID].Clone(),
		Dispute:  u.tables.disputes[bookingID].Clone(),
		Feedback: u.tables.feedback[bookingID].Clone(),
	}, nil
}

func (u *MemoryUnitOfWork) ListAudit(ctx context.Context, bookingID uuid.UUID) ([]entity.AuditRecord, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var records []entity.AuditRecord
	for _, r := range u.tables.audit {
		if r.BookingID == bookingID {
			records = append(records, r)
		}
	}
	return records, nil
}

func (u *MemoryUnitOfWork) ListExpiredRequests(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var expired []*entity.Booking
	for _, b := range u.tables.bookings {
		if b.Status == vo.BookingStatusRequested && b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	ids := make([]uuid.UUID, len(expired))
	for i, b := range expired {
		ids[i] = b.ID
	}
	return ids, nil
}

type memoryTx struct {
	uow    *MemoryUnitOfWork
	staged memoryTables
	held   map[uuid.UUID]chan struct{}
	hooks  []func(ctx context.Context)
	done   bool
}

func (t *memoryTx) acquire(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	l := t.uow.rowLock(id)
	select {
	case l <- struct{}{}:
		t.held[id] = l
		return nil
	case <-ctx.Done():
		return apperror.Wrap(ctx.Err(), apperror.ErrCodeDatabaseError, "не удалось заблокировать бронирование")
	}
}

func (t *memoryTx) release() {
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
	t.done = true
}

func (t *memoryTx) LockBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	if t.done {
		return nil, errTxDone
	}
	if err := t.acquire(ctx, id); err != nil {
		return nil, err
	}
	b := t.booking(id)
	if b == nil {
		return nil, apperror.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (t *memoryTx) booking(id uuid.UUID) *entity.Booking {
	if b, ok := t.staged.bookings[id]; ok {
		return b
	}
	t.uow.mu.RLock()
	defer t.uow.mu.RUnlock()
	return t.uow.tables.bookings[id]
}

func (t *memoryTx) CreateBooking(ctx context.Context, b *entity.Booking) error {
	if t.done {
		return errTxDone
	}
	if t.booking(b.ID) != nil {
		return apperror.New(apperror.ErrCodeConflict, "бронирование уже существует")
	}
	if err := t.acquire(ctx, b.ID); err != nil {
		return err
	}
	t.staged.bookings[b.ID] = b.Clone()
	return nil
}

func (t *memoryTx) UpdateBooking(ctx context.Context, b *entity.Booking) error {
	if t.done {
		return errTxDone
	}
	if t.booking(b.ID) == nil {
		return apperror.ErrBookingNotFound
	}
	t.staged.bookings[b.ID] = b.Clone()
	return nil
}

func (t *memoryTx) GetPayment(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	p := pick(t, bookingID, func(m memoryTables) map[uuid.UUID]*entity.Payment { return m.payments })
	if p == nil {
		return nil, apperror.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

func (t *memoryTx) CreatePayment(ctx context.Context, p *entity.Payment) error {
	if existing := pick(t, p.BookingID, func(m memoryTables) map[uuid.UUID]*entity.Payment { return m.payments }); existing != nil {
		return apperror.New(apperror.ErrCodeConflict, "оплата по бронированию уже существует")
	}
	t.staged.payments[p.BookingID] = p.Clone()
	return nil
}

func (t *memoryTx) UpdatePayment(ctx context.Context, p *entity.Payment) error {
	if existing := pick(t, p.BookingID, func(m memoryTables) map[uuid.UUID]*entity.Payment { return m.payments }); existing == nil {
		return apperror.ErrPaymentNotFound
	}
	t.staged.payments[p.BookingID] = p.Clone()
	return nil
}

func (t *memoryTx) GetPayout(ctx context.Context, bookingID uuid.UUID) (*entity.Payout, error) {
	return pick(t, bookingID, func(m memoryTables) map[uuid.UUID]*entity.Payout { return m.payouts }).Clone(), nil
}

func (t *memoryTx) SavePayout(ctx context.Context, p *entity.Payout) error {
	t.staged.payouts[p.BookingID] = p.Clone()
	return nil
}

func (t *memoryTx) GetDispute(ctx context.Context, bookingID uuid.UUID) (*entity.Dispute, error) {
	return pick(t, bookingID, func(m memoryTables) map[uuid.UUID]*entity.Dispute { return m.disputes }).Clone(), nil
}

func (t *memoryTx) SaveDispute(ctx context.Context, d *entity.Dispute) error {
	t.staged.disputes[d.BookingID] = d.Clone()
	return nil
}

func (t *memoryTx) GetFeedback(ctx context.Context, bookingID uuid.UUID) (*entity.CallFeedback, error) {
	return pick(t, bookingID, func(m memoryTables) map[uuid.UUID]*entity.CallFeedback { return m.feedback }).Clone(), nil
}

func (t *memoryTx) SaveFeedback(ctx context.Context, f *entity.CallFeedback) error {
	t.staged.feedback[f.BookingID] = f.Clone()
	return nil
}

func (t *memoryTx) PayoutDestination(ctx context.Context, professionalID uuid.UUID) (*string, error) {
	t.uow.mu.RLock()
	defer t.uow.mu.RUnlock()
	d, ok := t.uow.tables.destinations[professionalID]
	if !ok || d == "" {
		return nil, nil
	}
	return &d, nil
}

func (t *memoryTx) InsertAudit(ctx context.Context, record *entity.AuditRecord) error {
	t.staged.audit = append(t.staged.audit, *record)
	return nil
}

func (t *memoryTx) Snapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error) {
	b := t.booking(bookingID)
	if b == nil {
		return nil, apperror.ErrBookingNotFound
	}
	payout, _ := t.GetPayout(ctx, bookingID)
	dispute, _ := t.GetDispute(ctx, bookingID)
	feedback, _ := t.GetFeedback(ctx, bookingID)
	return &entity.Snapshot{
		Booking:  b.Clone(),
		Payment:  pick(t, bookingID, func(m memoryTables) map[uuid.UUID]*entity.Payment { return m.payments }).Clone(),
		Payout:   payout,
		Dispute:  dispute,
		Feedback: feedback,
	}, nil
}

func (t *memoryTx) OnCommit(fn func(ctx context.Context)) {
	t.hooks = append(t.hooks, fn)
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxDone
	}
	u := t.uow
	u.mu.Lock()
	for id, b := range t.staged.bookings {
		u.tables.bookings[id] = b
	}
	for id, p := range t.staged.payments {
		u.tables.payments[id] = p
	}
	for id, p := range t.staged.payouts {
		u.tables.payouts[id] = p
	}
	for id, d := range t.staged.disputes {
		u.tables.disputes[id] = d
	}
	for id, f := range t.staged.feedback {
		u.tables.feedback[id] = f
	}
	u.tables.audit = append(u.tables.audit, t.staged.audit...)
	u.mu.Unlock()
	t.release()

	runHooks(t.hooks)
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.staged = newMemoryTables()
	t.hooks = nil
	t.release()
	return nil
}

// pick читает строку сначала из незакоммиченных изменений транзакции.
func pick[T any](t *memoryTx, bookingID uuid.UUID, table func(memoryTables) map[uuid.UUID]*T) *T {
	if v, ok := table(t.staged)[bookingID]; ok {
		return v
	}
	t.uow.mu.RLock()
	defer t.uow.mu.RUnlock()
	return table(t.uow.tables)[bookingID]
}

// runHooks выполняет post-commit хуки; паника в хуке не должна ронять вызывающего.
func runHooks(hooks []func(ctx context.Context)) {
	ctx := context.Background()
	for _, fn := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Get().WithField("panic", r).Error("паника в post-commit хуке")
				}
			}()
			fn(ctx)
		}()
	}
}
