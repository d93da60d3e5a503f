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

type AdminHandler struct {
	adminService *service.AdminService
	orderService *service.OrderService
}

func NewAdminHandler(adminService *service.AdminService, orderService *service.OrderService) *AdminHandler {
	return &AdminHandler{adminService: adminService, orderService: orderService}
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	dash, err := h.adminService.Dashboard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	recent := make([]dto.OrderResponse, 0, len(dash.RecentOrders))
	for i := range dash.RecentOrders {
		recent = append(recent, toOrderResponse(&dash.RecentOrders[i]))
	}
	lowStock := make([]dto.ProductResponse, 0, len(dash.LowStockProducts))
	for i := range dash.LowStockProducts {
		lowStock = append(lowStock, toProductResponse(&dash.LowStockProducts[i]))
	}

	c.JSON(http.StatusOK, dto.DashboardResponse{
		TotalUsers:       dash.Stats.TotalUsers,
		TotalProducts:    dash.Stats.TotalProducts,
		TotalOrders:      dash.Stats.TotalOrders,
		TotalRevenue:     dash.Stats.TotalRevenue,
		PendingOrders:    dash.Stats.PendingOrders,
		RecentOrders:     recent,
		LowStockProducts: lowStock,
	})
}

func (h *AdminHandler) SalesReport(c *gin.Context) {
	var req dto.SalesReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.EndDate.Before(req.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must not precede start_date"})
		return
	}

	rows, err := h.adminService.SalesReport(c.Request.Context(), req.StartDate, req.EndDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	out := make([]dto.SalesReportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.SalesReportRow{
			Date:           r.Date,
			OrderCount:     r.OrderCount,
			TotalSales:     r.TotalSales,
			TotalDiscounts: r.TotalDiscounts,
			NetSales:       r.NetSales,
		})
	}
	c.JSON(http.StatusOK, gin.H{"report": out})
}

func (h *AdminHandler) TopProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	rows, err := h.adminService.TopProducts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	out := make([]dto.TopProductRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, dto.TopProductRow{
			ProductID:    r.Product.ID,
			Name:         r.Product.Name,
			OrderCount:   r.OrderCount,
			TotalSold:    r.TotalSold,
			TotalRevenue: r.TotalRevenue,
		})
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *AdminHandler) ListAllOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != "" && !model.ValidOrderStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	orders, total, err := h.orderService.ListAll(c.Request.Context(), req.Status, req.Limit, (req.Page-1)*req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: total})
}

func (h *AdminHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !model.ValidOrderStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order status"})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, model.OrderStatus(req.Status))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, total, err := h.adminService.ListUsers(c.Request.Context(), c.Query("role"), limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		u := &users[i]
		items = append(items, dto.UserResponse{
			ID: u.ID, Email: u.Email,
			FirstName: u.FirstName, LastName: u.LastName,
			Role: u.Role, IsActive: u.IsActive, CreatedAt: u.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": items, "total": total})
}

func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}
	var req dto.UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.adminService.UpdateUserRole(c.Request.Context(), userID, req.Role); err != nil {
		writeUserError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) DeactivateUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}
	if err := h.adminService.DeactivateUser(c.Request.Context(), userID); err != nil {
		writeUserError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeUserError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
