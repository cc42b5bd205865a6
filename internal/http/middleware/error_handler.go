package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

// ErrorHandler переводит ошибку из c.Errors в ответ. Внутренние ошибки маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperror.HTTPStatusOf(err)

		entry := logger.Get().WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": status,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("request error")
		} else {
			entry.Debug("request rejected")
		}

		c.JSON(status, gin.H{"error": apperror.PublicMessage(err)})
	}
}
