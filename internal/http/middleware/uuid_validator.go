package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const paramPrefix = "param:"

// UUIDValidator проверяет параметр пути и кладёт разобранный UUID в контекст.
// Использование: router.GET("/bookings/:id", UUIDValidator("id"), handler.Get)
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param(paramName))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " должен быть валидным UUID",
			})
			return
		}
		c.Set(paramPrefix+paramName, id)
		c.Next()
	}
}

// UUIDParam возвращает значение, проверенное UUIDValidator.
func UUIDParam(c *gin.Context, paramName string) uuid.UUID {
	if v, ok := c.Get(paramPrefix + paramName); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	id, _ := uuid.Parse(c.Param(paramName))
	return id
}
