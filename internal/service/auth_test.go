package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/markholt/go-storefront-api/internal/dto"
	"github.com/markholt/go-storefront-api/internal/model"
)

type mockUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	user.ID = uuid.New()
	user.IsActive = true
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) List(_ context.Context, role string, _, _ int) ([]model.User, int, error) {
	var out []model.User
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, len(out), nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Role = role
	return nil
}

func (m *mockUserRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.IsActive = false
	return nil
}

func TestAuthService_Register(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), "secret", time.Hour)

	resp, err := svc.Register(context.Background(), dto.RegisterRequest{
		Email: "jane@example.com", Password: "password123",
		FirstName: "Jane", LastName: "Doe",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "jane@example.com", resp.User.Email)
	assert.Equal(t, "customer", resp.User.Role)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), "secret", time.Hour)

	req := dto.RegisterRequest{
		Email: "jane@example.com", Password: "password123",
		FirstName: "Jane", LastName: "Doe",
	}
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	repo := newMockUserRepo()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, repo.Create(context.Background(), &model.User{
		Email: "jane@example.com", Password: string(hashed), Role: "customer",
	}))
	svc := NewAuthService(repo, "secret", time.Hour)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "jane@example.com", Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newMockUserRepo()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, repo.Create(context.Background(), &model.User{
		Email: "jane@example.com", Password: string(hashed), Role: "customer",
	}))
	svc := NewAuthService(repo, "secret", time.Hour)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "jane@example.com", Password: "nope",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Login_DisabledAccount(t *testing.T) {
	repo := newMockUserRepo()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &model.User{Email: "jane@example.com", Password: string(hashed), Role: "customer"}
	require.NoError(t, repo.Create(context.Background(), user))
	user.IsActive = false
	svc := NewAuthService(repo, "secret", time.Hour)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "jane@example.com", Password: "password123",
	})
	assert.ErrorIs(t, err, ErrAccountDisabled)
}
