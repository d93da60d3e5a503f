package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/markholt/go-storefront-api/internal/model"
	"github.com/markholt/go-storefront-api/internal/repository"
)

var (
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return s.cartRepo.GetCartWithItems(ctx, cart.ID)
}

// AddItem snapshots the current catalog price onto the line. Adding the
// same product again merges quantities but keeps the first snapshot.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*model.Cart, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	if product.StockQuantity < quantity {
		return nil, ErrInsufficientStock
	}

	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if err := s.cartRepo.AddItem(ctx, &model.CartItem{
		CartID:    cart.ID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     product.Price,
	}); err != nil {
		return nil, err
	}
	return s.cartRepo.GetCartWithItems(ctx, cart.ID)
}

// UpdateItem sets a line's quantity; anything at or below zero removes the
// line instead.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity <= 0 {
		return s.DeleteItem(ctx, userID, itemID)
	}

	cart, item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || product.StockQuantity < quantity {
		return nil, ErrInsufficientStock
	}

	if err := s.cartRepo.UpdateItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, err
	}
	return s.cartRepo.GetCartWithItems(ctx, cart.ID)
}

func (s *CartService) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error) {
	cart, _, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.cartRepo.DeleteItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.cartRepo.GetCartWithItems(ctx, cart.ID)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	return s.cartRepo.ClearCart(ctx, cart.ID)
}

// ownedItem loads the caller's cart and confirms the item belongs to it.
func (s *CartService) ownedItem(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, *model.CartItem, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get cart: %w", err)
	}
	cartWithItems, err := s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get cart items: %w", err)
	}
	if cartWithItems != nil {
		for i := range cartWithItems.Items {
			if cartWithItems.Items[i].ID == itemID {
				return cartWithItems, &cartWithItems.Items[i], nil
			}
		}
	}
	return nil, nil, ErrCartItemNotFound
}
