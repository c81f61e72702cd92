package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/coliman/portal-cfdi-api/internal/application/dto"
	"github.com/coliman/portal-cfdi-api/internal/domain"
	"github.com/coliman/portal-cfdi-api/internal/domain/entity"
	pkgjwt "github.com/coliman/portal-cfdi-api/pkg/jwt"
)

type stubUserRepo struct{ user *entity.User }

func (s *stubUserRepo) FindByEmail(email string) (*entity.User, error) {
	if s.user != nil && s.user.Email == email {
		return s.user, nil
	}
	return nil, nil
}

func (s *stubUserRepo) GetByID(id string) (*entity.User, error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, nil
}

type stubClientRepo struct{ client *entity.Client }

func (s *stubClientRepo) GetByID(id string) (*entity.Client, error) {
	if s.client != nil && s.client.ID == id {
		return s.client, nil
	}
	return nil, nil
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func testUseCase(t *testing.T, userStatus, clientStatus string) *AuthUseCase {
	t.Helper()
	users := &stubUserRepo{user: &entity.User{
		ID:           "user-1",
		ClientID:     "cliente-1",
		Email:        "ana@acme.mx",
		PasswordHash: hash(t, "secreta123"),
		Role:         "admin",
		Status:       userStatus,
	}}
	clients := &stubClientRepo{client: &entity.Client{ID: "cliente-1", Status: clientStatus}}
	return NewAuthUseCase(users, clients, JWTConfig{
		Secret:     "test-secret",
		ExpMinutes: 60,
		Issuer:     "portal-cfdi-test",
	})
}

func TestLogin_OK(t *testing.T) {
	uc := testUseCase(t, "active", "active")

	out, err := uc.Login(dto.LoginRequest{Email: "ana@acme.mx", Password: "secreta123"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Token)
	assert.Equal(t, "cliente-1", out.User.ClientID)

	// El token debe llevar el client_id del usuario.
	_, clientID, role, err := pkgjwt.Parse("test-secret", out.Token)
	require.NoError(t, err)
	assert.Equal(t, "cliente-1", clientID)
	assert.Equal(t, "admin", role)
}

func TestLogin_PasswordIncorrecto(t *testing.T) {
	uc := testUseCase(t, "active", "active")

	_, err := uc.Login(dto.LoginRequest{Email: "ana@acme.mx", Password: "otra"})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_UsuarioDesconocido(t *testing.T) {
	uc := testUseCase(t, "active", "active")

	_, err := uc.Login(dto.LoginRequest{Email: "nadie@acme.mx", Password: "secreta123"})
	assert.True(t, errors.Is(err, domain.ErrUserNotFound))
}

func TestLogin_UsuarioInactivo(t *testing.T) {
	uc := testUseCase(t, "inactive", "active")

	_, err := uc.Login(dto.LoginRequest{Email: "ana@acme.mx", Password: "secreta123"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestLogin_ClienteSuspendido(t *testing.T) {
	uc := testUseCase(t, "active", "suspended")

	_, err := uc.Login(dto.LoginRequest{Email: "ana@acme.mx", Password: "secreta123"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}
