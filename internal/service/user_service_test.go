package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MosTaFa-Abdulrahman/attend-api/internal/models"
	appErrors "github.com/MosTaFa-Abdulrahman/attend-api/pkg/errors"
)

type mockUserRepo struct {
	users   []models.User
	total   int
	byID    *models.User
	updated *models.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.byID == nil {
		return nil, sql.ErrNoRows
	}
	return m.byID, nil
}

func (m *mockUserRepo) List(ctx context.Context, page, size int) ([]models.User, int, error) {
	return m.users, m.total, nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id string, firstName, lastName, profilePic string) (*models.User, error) {
	if m.updated == nil {
		return nil, sql.ErrNoRows
	}
	m.updated.FirstName = firstName
	m.updated.LastName = lastName
	m.updated.ProfilePic = profilePic
	return m.updated, nil
}

func TestUserListEnvelope(t *testing.T) {
	repo := &mockUserRepo{
		users: []models.User{{ID: "u1"}, {ID: "u2"}},
		total: 12,
	}
	svc := NewUserService(repo, nil, nil)

	page, err := svc.List(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 12, page.TotalElements)
	assert.Equal(t, 6, page.TotalPages)
	assert.True(t, page.First)
	assert.False(t, page.Last)
}

func TestUserGetNotFound(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateProfile(t *testing.T) {
	repo := &mockUserRepo{updated: &models.User{ID: "u1"}}
	svc := NewUserService(repo, nil, nil)

	user, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{
		FirstName:  "Ahmed",
		LastName:   "Hassan",
		ProfilePic: "https://cdn.example.com/pic.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ahmed", user.FirstName)
}

func TestUpdateProfileRejectsBadURL(t *testing.T) {
	svc := NewUserService(&mockUserRepo{updated: &models.User{ID: "u1"}}, nil, nil)

	_, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{ProfilePic: "not a url"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
