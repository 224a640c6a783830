package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/studiva/campus-portal-api/internal/models"
	"github.com/studiva/campus-portal-api/pkg/config"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type userStoreStub struct {
	users     map[string]*models.User
	sessions  map[string]*models.RefreshToken
	createErr error
	seq       int
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.RefreshToken),
	}
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) Create(ctx context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if user.ID == "" {
		s.seq++
		user.ID = fmt.Sprintf("user-%d", s.seq)
	}
	s.users[user.ID] = user
	return nil
}

func (s *userStoreStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *userStoreStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		s.seq++
		token.ID = fmt.Sprintf("session-%d", s.seq)
	}
	s.sessions[token.Token] = token
	return nil
}

func (s *userStoreStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if session, ok := s.sessions[token]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, session := range s.sessions {
		if session.ID == id {
			session.Revoked = true
			session.RevokedAt = &revokedAt
		}
	}
	return nil
}

type registrationFilerStub struct {
	userIDs []string
}

func (s *registrationFilerStub) FileRegistration(ctx context.Context, userID, note string) (*models.Request, error) {
	s.userIDs = append(s.userIDs, userID)
	subject := userID
	return &models.Request{
		ID:            "req-1",
		Type:          models.RequestTypeNewUser,
		Status:        models.RequestStatusPending,
		SubjectUserID: &subject,
		Note:          note,
	}, nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "campus-portal-api",
	}
}

func seedUser(t *testing.T, store *userStoreStub, email, password string, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Ada Lovelace",
		Role:         models.RoleStudent,
		Active:       active,
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func TestAuthServiceRegisterFilesApprovalRequest(t *testing.T) {
	store := newUserStoreStub()
	filer := &registrationFilerStub{}
	svc := NewAuthService(store, filer, testJWTConfig(), nil, nil)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ada@example.com",
		Password: "correct-horse",
		FullName: "Ada Lovelace",
	})
	require.NoError(t, err)
	require.Equal(t, "req-1", resp.RequestID)
	require.Equal(t, models.RoleStudent, resp.User.Role)
	require.Len(t, filer.userIDs, 1)

	created := store.users[resp.User.ID]
	require.False(t, created.Active)
	require.NotEqual(t, "correct-horse", created.PasswordHash)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	store := newUserStoreStub()
	store.createErr = &pq.Error{Code: "23505"}
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ada@example.com",
		Password: "correct-horse",
		FullName: "Ada Lovelace",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginIssuesValidToken(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "ada@example.com", "correct-horse", true)
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "ada@example.com", "correct-horse", true)
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(newUserStoreStub(), &registrationFilerStub{}, testJWTConfig(), nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "anything"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "ada@example.com", "correct-horse", false)
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesSession(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "ada@example.com", "correct-horse", true)
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.True(t, store.sessions[login.RefreshToken].Revoked)
}

func TestAuthServiceRefreshRevokedSession(t *testing.T) {
	store := newUserStoreStub()
	user := seedUser(t, store, "ada@example.com", "correct-horse", true)
	store.sessions["stale"] = &models.RefreshToken{
		ID:        "session-9",
		UserID:    user.ID,
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		Revoked:   true,
	}
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	_, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	store := newUserStoreStub()
	seedUser(t, store, "ada@example.com", "correct-horse", true)
	svc := NewAuthService(store, &registrationFilerStub{}, testJWTConfig(), nil, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	other := NewAuthService(store, &registrationFilerStub{}, config.JWTConfig{Secret: "different", Expiration: time.Hour, RefreshExpiration: time.Hour}, nil, nil)
	_, err = other.ValidateToken(login.AccessToken)
	require.Error(t, err)
}
