package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/dto"
	"github.com/ignatzorin/consult-backend/internal/http/handlers/common"
	"github.com/ignatzorin/consult-backend/internal/http/middleware"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
)

// BookingHandler - HTTP фасад движка бронирований.
type BookingHandler struct {
	engine          *booking.Engine
	defaultCurrency string
}

func NewBookingHandler(engine *booking.Engine, defaultCurrency string) *BookingHandler {
	return &BookingHandler{engine: engine, defaultCurrency: defaultCurrency}
}

// Create POST /bookings
func (h *BookingHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	var req dto.CreateBookingRequest
	if !common.BindJSON(c, &req) {
		return
	}

	b, err := h.engine.Request(c.Request.Context(), actor, req.ToInput(h.defaultCurrency))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewBookingResponse(b))
}

// Get GET /bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	snap, err := h.engine.GetSnapshot(c.Request.Context(), middleware.UUIDParam(c, "id"), actor)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSnapshotResponse(snap))
}

// Audit GET /bookings/:id/audit
func (h *BookingHandler) Audit(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	records, err := h.engine.ListAudit(c.Request.Context(), middleware.UUIDParam(c, "id"), actor)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.NewAuditResponse(records)})
}

// Accept POST /bookings/:id/accept
func (h *BookingHandler) Accept(c *gin.Context) {
	var req dto.AcceptBookingRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.Accept(c.Request.Context(), p.BookingID, p.Actor, req.ToInput())
	})
}

// Decline POST /bookings/:id/decline
func (h *BookingHandler) Decline(c *gin.Context) {
	var req dto.ReasonRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.Decline(c.Request.Context(), p.BookingID, p.Actor, req.Reason)
	})
}

// Cancel POST /bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req dto.CancelBookingRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.Cancel(c.Request.Context(), p.BookingID, p.Actor, booking.CancelInput{Reason: req.Reason})
	})
}

// RequestReschedule POST /bookings/:id/reschedule
func (h *BookingHandler) RequestReschedule(c *gin.Context) {
	var req dto.RescheduleRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.RequestReschedule(c.Request.Context(), p.BookingID, p.Actor, req.ToInput())
	})
}

// ConfirmReschedule POST /bookings/:id/reschedule/confirm
func (h *BookingHandler) ConfirmReschedule(c *gin.Context) {
	var req dto.RescheduleRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.ConfirmReschedule(c.Request.Context(), p.BookingID, p.Actor, req.ToInput())
	})
}

// RejectReschedule POST /bookings/:id/reschedule/reject
func (h *BookingHandler) RejectReschedule(c *gin.Context) {
	var req dto.ReasonRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.RejectReschedule(c.Request.Context(), p.BookingID, p.Actor, req.Reason)
	})
}

// OpenDispute POST /bookings/:id/dispute
func (h *BookingHandler) OpenDispute(c *gin.Context) {
	var req dto.OpenDisputeRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.OpenDispute(c.Request.Context(), p.BookingID, p.Actor, req.ToInput())
	})
}

// SubmitFeedback POST /bookings/:id/feedback
func (h *BookingHandler) SubmitFeedback(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	var req dto.SubmitFeedbackRequest
	if !common.BindJSON(c, &req) {
		return
	}
	fb, err := h.engine.SubmitFeedback(c.Request.Context(), middleware.UUIDParam(c, "id"), actor, req.ToInput())
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewFeedbackResponse(fb))
}

// ResolveDispute POST /admin/bookings/:id/dispute/resolve
func (h *BookingHandler) ResolveDispute(c *gin.Context) {
	var req dto.ResolveDisputeRequest
	h.transition(c, &req, func(c *gin.Context, p transitionParams) (*entity.Booking, error) {
		return h.engine.ResolveDispute(c.Request.Context(), p.BookingID, p.Actor, req.ToInput())
	})
}

type transitionParams struct {
	BookingID uuid.UUID
	Actor     entity.Actor
}

// transition - общий путь для переходов: актор, тело запроса, вызов движка, ответ со статусом.
func (h *BookingHandler) transition(c *gin.Context, req any, call func(*gin.Context, transitionParams) (*entity.Booking, error)) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	if !common.BindJSON(c, req) {
		return
	}
	b, err := call(c, transitionParams{BookingID: middleware.UUIDParam(c, "id"), Actor: actor})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBookingResponse(b))
}
