package common

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/http/middleware"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// CurrentActor извлекает участника, положенного AuthMiddleware.
func CurrentActor(c *gin.Context) (entity.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return entity.Actor{}, apperror.ErrUnauthorized
	}
	return actor, nil
}

// BindJSON разбирает тело и отвечает 400 с перечнем полей при ошибке валидации.
func BindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if errors.Is(err, io.EOF) {
		// пустое тело допустимо, если у запроса нет обязательных полей
		err = binding.Validator.ValidateStruct(req)
	}
	if err != nil {
		resp := ErrorResponse{Error: "ошибка валидации запроса"}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp.Fields = make(map[string]string, len(verrs))
			for _, fe := range verrs {
				resp.Fields[fe.Field()] = fe.Tag()
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return false
	}
	return true
}

// Fail передаёт ошибку в middleware.ErrorHandler.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
