package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markholt/go-storefront-api/internal/dto"
	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

type mockProductRepo struct {
	products map[uuid.UUID]*model.Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: make(map[uuid.UUID]*model.Product)}
}

func (m *mockProductRepo) Create(_ context.Context, p *model.Product) error {
	p.ID = uuid.New()
	p.IsActive = true
	p.CreatedAt = time.Now()
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	return m.products[id], nil
}

func (m *mockProductRepo) List(_ context.Context, _, _ int, search, category, _, _ string) ([]model.Product, int, error) {
	var out []model.Product
	for _, p := range m.products {
		if !p.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(search)) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockProductRepo) Update(_ context.Context, p *model.Product) error {
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	p, ok := m.products[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.IsActive = false
	return nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, _ pgx.Tx, productID uuid.UUID, quantity int) error {
	p, ok := m.products[productID]
	if !ok || p.StockQuantity < quantity {
		name := ""
		if ok {
			name = p.Name
		}
		return &repository.InsufficientStockError{ProductID: productID, ProductName: name}
	}
	p.StockQuantity -= quantity
	return nil
}

func (m *mockProductRepo) RestoreStock(_ context.Context, _ pgx.Tx, productID uuid.UUID, quantity int) error {
	if p, ok := m.products[productID]; ok {
		p.StockQuantity += quantity
	}
	return nil
}

func (m *mockProductRepo) ListLowStock(_ context.Context, threshold, _ int) ([]model.Product, error) {
	var out []model.Product
	for _, p := range m.products {
		if p.IsActive && p.StockQuantity <= threshold {
			out = append(out, *p)
		}
	}
	return out, nil
}

func seedProduct(repo *mockProductRepo, name string, price decimal.Decimal, stock int) *model.Product {
	p := &model.Product{
		ID: uuid.New(), Name: name, Description: "d",
		Price: price, StockQuantity: stock, IsActive: true,
	}
	repo.products[p.ID] = p
	return p
}

func TestProductService_GetByID_HidesInactive(t *testing.T) {
	repo := newMockProductRepo()
	p := seedProduct(repo, "Lamp", decimal.NewFromInt(40), 5)
	p.IsActive = false
	svc := NewProductService(repo, nil)

	_, err := svc.GetByID(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductService_Update_AppliesFields(t *testing.T) {
	repo := newMockProductRepo()
	p := seedProduct(repo, "Lamp", decimal.NewFromInt(40), 5)
	svc := NewProductService(repo, nil)

	name := "Desk Lamp"
	stock := 12
	updated, err := svc.Update(context.Background(), p.ID, dto.UpdateProductRequest{
		Name: &name, StockQuantity: &stock,
	})
	require.NoError(t, err)
	assert.Equal(t, "Desk Lamp", updated.Name)
	assert.Equal(t, 12, updated.StockQuantity)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(40)))
}

func TestProductService_Update_NotFound(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil)
	_, err := svc.Update(context.Background(), uuid.New(), dto.UpdateProductRequest{})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductService_Deactivate_NotFound(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil)
	err := svc.Deactivate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}
