package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/application"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/response"
)

// AdminHandler handles admin HTTP requests for zones, fares and rates.
type AdminHandler struct {
	service *application.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *application.AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/api/v1/admin")
	{
		admin.GET("/zones", h.ListZones)
		admin.PUT("/zones", h.SaveZone)
		admin.GET("/fares", h.ListFares)
		admin.PUT("/fares", h.SetFare)
		admin.GET("/rates", h.GetRates)
		admin.PUT("/rates", h.UpdateRates)
	}
}

// ListZones handles GET /api/v1/admin/zones.
func (h *AdminHandler) ListZones(c *gin.Context) {
	zones, err := h.service.ListZones(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, zones)
}

// SaveZone handles PUT /api/v1/admin/zones.
func (h *AdminHandler) SaveZone(c *gin.Context) {
	var req application.UpsertZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	z, err := h.service.SaveZone(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, z)
}

// ListFares handles GET /api/v1/admin/fares.
func (h *AdminHandler) ListFares(c *gin.Context) {
	fares, err := h.service.ListFares(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, fares)
}

// SetFare handles PUT /api/v1/admin/fares.
func (h *AdminHandler) SetFare(c *gin.Context) {
	var req application.SetFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	fare, err := h.service.SetFare(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, fare)
}

// GetRates handles GET /api/v1/admin/rates.
func (h *AdminHandler) GetRates(c *gin.Context) {
	response.Success(c, h.service.Rates())
}

// UpdateRates handles PUT /api/v1/admin/rates.
func (h *AdminHandler) UpdateRates(c *gin.Context) {
	var card quote.RateCard
	if err := c.ShouldBindJSON(&card); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rates, err := h.service.UpdateRates(card)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rates)
}
