package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/markholt/go-storefront-api/internal/model"
)

// DashboardStats is the aggregate snapshot shown on the admin landing page.
type DashboardStats struct {
	TotalUsers    int
	TotalProducts int
	TotalOrders   int
	TotalRevenue  decimal.Decimal
	PendingOrders int
}

type SalesReportRow struct {
	Date           time.Time
	OrderCount     int
	TotalSales     decimal.Decimal
	TotalDiscounts decimal.Decimal
	NetSales       decimal.Decimal
}

type TopProductRow struct {
	Product      model.Product
	OrderCount   int
	TotalSold    int
	TotalRevenue decimal.Decimal
}

// ReportRepository serves the read-only admin aggregations. Cancelled
// orders still count toward order totals; revenue sums final_amount.
type ReportRepository interface {
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	SalesReport(ctx context.Context, start, end time.Time) ([]SalesReportRow, error)
	TopProducts(ctx context.Context, limit int) ([]TopProductRow, error)
}

type pgReportRepo struct{ pool *pgxpool.Pool }

func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &pgReportRepo{pool: pool}
}

func (r *pgReportRepo) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM products WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(final_amount), 0) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE status = 'pending')`,
	).Scan(&stats.TotalUsers, &stats.TotalProducts, &stats.TotalOrders,
		&stats.TotalRevenue, &stats.PendingOrders)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

func (r *pgReportRepo) SalesReport(ctx context.Context, start, end time.Time) ([]SalesReportRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DATE(created_at) AS day,
		       COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM(discount_amount), 0),
		       COALESCE(SUM(final_amount), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY day
		ORDER BY day DESC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}
	defer rows.Close()

	var report []SalesReportRow
	for rows.Next() {
		var row SalesReportRow
		if err := rows.Scan(&row.Date, &row.OrderCount, &row.TotalSales,
			&row.TotalDiscounts, &row.NetSales); err != nil {
			return nil, fmt.Errorf("scan sales row: %w", err)
		}
		report = append(report, row)
	}
	return report, nil
}

func (r *pgReportRepo) TopProducts(ctx context.Context, limit int) ([]TopProductRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.price, p.category,
		       COUNT(oi.id),
		       COALESCE(SUM(oi.quantity), 0),
		       COALESCE(SUM(oi.subtotal), 0)
		FROM products p
		JOIN order_items oi ON oi.product_id = p.id
		GROUP BY p.id
		ORDER BY SUM(oi.quantity) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	var top []TopProductRow
	for rows.Next() {
		var row TopProductRow
		if err := rows.Scan(&row.Product.ID, &row.Product.Name, &row.Product.Price,
			&row.Product.Category, &row.OrderCount, &row.TotalSold, &row.TotalRevenue); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		top = append(top, row)
	}
	return top, nil
}
