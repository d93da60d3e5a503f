package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/markholt/go-storefront-api/internal/dto"
	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/service"
)

type DiscountHandler struct {
	discountService *service.DiscountService
}

func NewDiscountHandler(discountService *service.DiscountService) *DiscountHandler {
	return &DiscountHandler{discountService: discountService}
}

// ValidateDiscount is the pre-checkout dry run. It never consumes a use.
func (h *DiscountHandler) ValidateDiscount(c *gin.Context) {
	var req dto.ValidateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quote, err := h.discountService.Evaluate(c.Request.Context(), req.Code, req.OrderAmount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if !quote.Valid {
		c.JSON(http.StatusOK, dto.DiscountQuoteResponse{Valid: false, Reason: quote.Reason})
		return
	}
	c.JSON(http.StatusOK, dto.DiscountQuoteResponse{
		Valid:          true,
		Code:           quote.Discount.Code,
		DiscountAmount: &quote.DiscountAmount,
		FinalAmount:    &quote.FinalAmount,
	})
}

func (h *DiscountHandler) CreateDiscount(c *gin.Context) {
	var req dto.CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Value.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be positive"})
		return
	}

	discount, err := h.discountService.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrDiscountCodeExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "discount code already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, toDiscountResponse(discount))
}

func (h *DiscountHandler) ListDiscounts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var isActive *bool
	if raw := c.Query("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid is_active filter"})
			return
		}
		isActive = &v
	}

	discounts, total, err := h.discountService.List(c.Request.Context(), limit, (page-1)*limit, isActive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	items := make([]dto.DiscountResponse, 0, len(discounts))
	for i := range discounts {
		items = append(items, toDiscountResponse(&discounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"discounts": items, "total": total})
}

func (h *DiscountHandler) UpdateDiscount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid discount ID"})
		return
	}
	var req dto.UpdateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	discount, err := h.discountService.Update(c.Request.Context(), id, req)
	if err != nil {
		if errors.Is(err, service.ErrDiscountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "discount not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toDiscountResponse(discount))
}

func (h *DiscountHandler) DeleteDiscount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid discount ID"})
		return
	}
	if err := h.discountService.Deactivate(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrDiscountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "discount not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func toDiscountResponse(d *model.Discount) dto.DiscountResponse {
	return dto.DiscountResponse{
		ID:                d.ID,
		Code:              d.Code,
		Description:       d.Description,
		Type:              string(d.Type),
		Value:             d.Value,
		MinOrderAmount:    d.MinOrderAmount,
		MaxDiscountAmount: d.MaxDiscountAmount,
		UsageLimit:        d.UsageLimit,
		UsedCount:         d.UsedCount,
		ValidFrom:         d.ValidFrom,
		ValidUntil:        d.ValidUntil,
		IsActive:          d.IsActive,
		CreatedAt:         d.CreatedAt,
	}
}
