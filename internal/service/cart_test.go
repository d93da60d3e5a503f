package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markholt/go-storefront-api/internal/model"
)

type mockCartRepo struct {
	carts  map[uuid.UUID]*model.Cart
	byUser map[uuid.UUID]uuid.UUID
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{
		carts:  make(map[uuid.UUID]*model.Cart),
		byUser: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockCartRepo) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	if cartID, ok := m.byUser[userID]; ok {
		return m.carts[cartID], nil
	}
	cart := &model.Cart{ID: uuid.New(), UserID: userID}
	m.carts[cart.ID] = cart
	m.byUser[userID] = cart.ID
	return cart, nil
}

func (m *mockCartRepo) GetCartWithItems(_ context.Context, cartID uuid.UUID) (*model.Cart, error) {
	return m.carts[cartID], nil
}

func (m *mockCartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	cart := m.carts[item.CartID]
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	item.ID = uuid.New()
	cart.Items = append(cart.Items, *item)
	return nil
}

func (m *mockCartRepo) UpdateItemQuantity(_ context.Context, itemID uuid.UUID, quantity int) error {
	for _, cart := range m.carts {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items[i].Quantity = quantity
				return nil
			}
		}
	}
	return pgx.ErrNoRows
}

func (m *mockCartRepo) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	for _, cart := range m.carts {
		for i := range cart.Items {
			if cart.Items[i].ID == itemID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *mockCartRepo) ClearCart(_ context.Context, cartID uuid.UUID) error {
	if cart, ok := m.carts[cartID]; ok {
		cart.Items = nil
	}
	return nil
}

func (m *mockCartRepo) ClearCartInTx(ctx context.Context, _ pgx.Tx, cartID uuid.UUID) error {
	return m.ClearCart(ctx, cartID)
}

func TestCartService_AddItem_SnapshotsPrice(t *testing.T) {
	productRepo := newMockProductRepo()
	product := seedProduct(productRepo, "Mug", decimal.NewFromInt(12), 10)
	svc := NewCartService(newMockCartRepo(), productRepo)
	userID := uuid.New()

	cart, err := svc.AddItem(context.Background(), userID, product.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].Price.Equal(decimal.NewFromInt(12)))

	// A later catalog price change must not touch the line.
	product.Price = decimal.NewFromInt(99)
	cart, err = svc.GetCart(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, cart.Items[0].Price.Equal(decimal.NewFromInt(12)))
}

func TestCartService_AddItem_MergesQuantity(t *testing.T) {
	productRepo := newMockProductRepo()
	product := seedProduct(productRepo, "Mug", decimal.NewFromInt(12), 10)
	svc := NewCartService(newMockCartRepo(), productRepo)
	userID := uuid.New()

	_, err := svc.AddItem(context.Background(), userID, product.ID, 2)
	require.NoError(t, err)
	cart, err := svc.AddItem(context.Background(), userID, product.ID, 3)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestCartService_AddItem_InsufficientStock(t *testing.T) {
	productRepo := newMockProductRepo()
	product := seedProduct(productRepo, "Mug", decimal.NewFromInt(12), 1)
	svc := NewCartService(newMockCartRepo(), productRepo)

	_, err := svc.AddItem(context.Background(), uuid.New(), product.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestCartService_AddItem_InactiveProduct(t *testing.T) {
	productRepo := newMockProductRepo()
	product := seedProduct(productRepo, "Mug", decimal.NewFromInt(12), 10)
	product.IsActive = false
	svc := NewCartService(newMockCartRepo(), productRepo)

	_, err := svc.AddItem(context.Background(), uuid.New(), product.ID, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCartService_UpdateItem_ZeroRemovesLine(t *testing.T) {
	productRepo := newMockProductRepo()
	product := seedProduct(productRepo, "Mug", decimal.NewFromInt(12), 10)
	svc := NewCartService(newMockCartRepo(), productRepo)
	userID := uuid.New()

	cart, err := svc.AddItem(context.Background(), userID, product.ID, 2)
	require.NoError(t, err)

	cart, err = svc.UpdateItem(context.Background(), userID, cart.Items[0].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartService_DeleteItem_NotFound(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockProductRepo())
	_, err := svc.DeleteItem(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}
