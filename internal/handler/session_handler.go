package handler

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/application"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/route"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/response"
)

const maxSettleWait = 10 * time.Second

// SessionHandler handles HTTP requests for map sessions.
type SessionHandler struct {
	service *application.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service *application.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// RegisterRoutes registers all session routes on the given router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/api/v1/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.CloseSession)
		sessions.POST("/:id/clicks", h.Click)
		sessions.PUT("/:id/mode", h.SetSelectionMode)
		sessions.PUT("/:id/form", h.UpdateForm)
		sessions.POST("/:id/quote", h.CalculateQuote)
		sessions.POST("/:id/clear/:slot", h.ClearSlot)
		sessions.POST("/:id/reset", h.Reset)
		sessions.POST("/:id/request", h.RequestQuote)
	}
}

type clickRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type quoteRequest struct {
	DurationMinutes *float64 `json:"duration_minutes"`
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session := h.service.Create()
	response.Created(c, session.Snapshot())
}

// GetSession handles GET /api/v1/sessions/:id. With ?wait=<seconds> it first
// waits for pending address and route work to finish.
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if raw := c.Query("wait"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds < 0 {
			response.BadRequest(c, "wait must be a non-negative number of seconds")
			return
		}
		wait := time.Duration(seconds * float64(time.Second))
		if wait > maxSettleWait {
			wait = maxSettleWait
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		defer cancel()
		// A timeout just returns the state as it is.
		_ = session.Settle(ctx)
	}

	response.Success(c, session.Snapshot())
}

// CloseSession handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return
	}
	if err := h.service.Close(id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Click handles POST /api/v1/sessions/:id/clicks.
func (h *SessionHandler) Click(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	point, err := geo.NewGeoPoint(*req.Lat, *req.Lng)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := session.OnMapClick(point); err != nil {
		sessionError(c, err)
		return
	}
	response.Success(c, session.Snapshot())
}

// SetSelectionMode handles PUT /api/v1/sessions/:id/mode.
func (h *SessionHandler) SetSelectionMode(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	mode, err := route.ParseSelectionMode(req.Mode)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := session.SetSelectionMode(mode); err != nil {
		sessionError(c, err)
		return
	}
	response.Success(c, session.Snapshot())
}

// UpdateForm handles PUT /api/v1/sessions/:id/form.
func (h *SessionHandler) UpdateForm(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req application.FormInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := session.UpdateForm(req); err != nil {
		sessionError(c, err)
		return
	}
	response.Success(c, session.Snapshot())
}

// CalculateQuote handles POST /api/v1/sessions/:id/quote.
func (h *SessionHandler) CalculateQuote(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	// The body is optional.
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := session.CalculateQuote(req.DurationMinutes)
	if err != nil {
		sessionError(c, err)
		return
	}
	response.Success(c, result)
}

// ClearSlot handles POST /api/v1/sessions/:id/clear/:slot.
func (h *SessionHandler) ClearSlot(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	slot, err := route.ParseMarkerSlot(c.Param("slot"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := session.Clear(slot); err != nil {
		sessionError(c, err)
		return
	}
	response.Success(c, session.Snapshot())
}

// Reset handles POST /api/v1/sessions/:id/reset.
func (h *SessionHandler) Reset(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Reset(); err != nil {
		sessionError(c, err)
		return
	}
	response.Success(c, session.Snapshot())
}

// RequestQuote handles POST /api/v1/sessions/:id/request.
func (h *SessionHandler) RequestQuote(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	submitted, err := session.RequestQuote(c.Request.Context())
	if err != nil {
		sessionError(c, err)
		return
	}
	if !submitted {
		response.Success(c, gin.H{"submitted": false})
		return
	}
	response.Accepted(c, gin.H{"submitted": true})
}

func (h *SessionHandler) session(c *gin.Context) (*application.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return nil, false
	}
	session, err := h.service.Get(id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return session, true
}

func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, application.ErrOutsideServiceArea):
		response.Error(c, domain.NewUnprocessableError(err.Error(), err))
	case errors.Is(err, application.ErrSessionClosed):
		response.Error(c, domain.NewNotFoundError("Session", c.Param("id")))
	default:
		response.Error(c, err)
	}
}
