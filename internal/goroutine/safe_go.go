package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/logger"
)

// Logger интерфейс для логирования паник.
type Logger interface {
	WithField(key string, value interface{}) *logrus.Entry
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(name string, fn func()) {
	go func() {
		defer rh.recover(name)
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
// done закрывается после выхода fn, в том числе после паники.
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, name string, fn func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer rh.recover(name)
		fn(ctx)
	}()
	return done
}

func (rh *RecoveryHandler) recover(name string) {
	if r := recover(); r != nil {
		rh.logger.WithField("goroutine", name).
			WithField("stack", string(debug.Stack())).
			Errorf("panic в горутине: %v", r)
	}
}

// SafeGo - горутина с глобальным логгером.
func SafeGo(name string, fn func()) {
	NewRecoveryHandler(logger.Get()).SafeGo(name, fn)
}

// SafeGoWithContext - то же с контекстом.
func SafeGoWithContext(ctx context.Context, name string, fn func(context.Context)) <-chan struct{} {
	return NewRecoveryHandler(logger.Get()).SafeGoWithContext(ctx, name, fn)
}
