package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

const lowStockThreshold = 10

// Dashboard bundles the aggregates and the detail lists shown on the
// admin landing page.
type Dashboard struct {
	Stats            repository.DashboardStats
	RecentOrders     []model.Order
	LowStockProducts []model.Product
}

type AdminService struct {
	reportRepo  repository.ReportRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
}

func NewAdminService(
	reportRepo repository.ReportRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
) *AdminService {
	return &AdminService{
		reportRepo:  reportRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
	}
}

func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	stats, err := s.reportRepo.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.orderRepo.ListAll(ctx, "", 10, 0)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	lowStock, err := s.productRepo.ListLowStock(ctx, lowStockThreshold, 10)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Stats: *stats, RecentOrders: recent, LowStockProducts: lowStock}, nil
}

func (s *AdminService) SalesReport(ctx context.Context, start, end time.Time) ([]repository.SalesReportRow, error) {
	// Make the end date inclusive of its whole day.
	return s.reportRepo.SalesReport(ctx, start, end.Add(24*time.Hour-time.Nanosecond))
}

func (s *AdminService) TopProducts(ctx context.Context, limit int) ([]repository.TopProductRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.reportRepo.TopProducts(ctx, limit)
}

func (s *AdminService) ListUsers(ctx context.Context, role string, limit, offset int) ([]model.User, int, error) {
	return s.userRepo.List(ctx, role, limit, offset)
}

func (s *AdminService) UpdateUserRole(ctx context.Context, userID uuid.UUID, role string) error {
	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update user role: %w", err)
	}
	return nil
}

func (s *AdminService) DeactivateUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}
