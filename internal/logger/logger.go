package logger

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// JSON для production, text включается через SetTextFormatter
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// Get возвращает инициализированный логгер или стандартный logrus (тесты, утилиты).
func Get() *logrus.Logger {
	if Log != nil {
		return Log
	}
	return logrus.StandardLogger()
}

func WithBooking(id uuid.UUID) *logrus.Entry {
	return Get().WithField("booking_id", id.String())
}
