package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail    *models.User
	findByEmailErr error
	exists         bool
	created        *models.User
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "u-new"
	m.created = user
	return nil
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.userByEmail, nil
}

func (m *mockAuthRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	return m.exists, nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "attend-api"}
}

func TestRegisterStudent(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		Username:  "ahmed",
		FirstName: "Ahmed",
		LastName:  "Hassan",
		Email:     "ahmed@example.com",
		Password:  "secret123",
		ClassName: "prep_1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	require.NotNil(t, repo.created)
	assert.NotEqual(t, "secret123", repo.created.PasswordHash)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-new", claims.UserID)
	assert.Equal(t, models.ClassPrep1, claims.ClassName)
}

func TestRegisterStudentRequiresClass(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "ahmed",
		Email:    "ahmed@example.com",
		Password: "secret123",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "className")
}

func TestRegisterAdminNeedsNoClass(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "boss",
		Email:    "boss@example.com",
		Password: "secret123",
		Role:     "ADMIN",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
}

func TestRegisterConflict(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{exists: true}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username:  "ahmed",
		Email:     "ahmed@example.com",
		Password:  "secret123",
		ClassName: "prep_1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID:           "u1",
		Email:        "ahmed@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		ClassName:    models.ClassPrep1,
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ahmed@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{userByEmail: &models.User{Email: "ahmed@example.com", PasswordHash: string(hash)}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ahmed@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{findByEmailErr: sql.ErrNoRows}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, testAuthConfig())
	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{Secret: "other-secret", Expiration: time.Hour})

	resp, err := other.Register(context.Background(), models.RegisterRequest{
		Username:  "ahmed",
		Email:     "ahmed@example.com",
		Password:  "secret123",
		ClassName: "prep_1",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	expired := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{Secret: "test-secret", Expiration: -time.Hour})

	resp, err := expired.Register(context.Background(), models.RegisterRequest{
		Username:  "ahmed",
		Email:     "ahmed@example.com",
		Password:  "secret123",
		ClassName: "prep_1",
	})
	require.NoError(t, err)

	_, err = expired.ValidateToken(resp.Token)
	require.Error(t, err)
}
