package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/pkg/config"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type mockVerifier struct {
	identity *models.Identity
	err      error
}

func (m *mockVerifier) Verify(ctx context.Context, idToken string) (*models.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.identity, nil
}

type mockAuthUserRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revoked       []string
	auditLogs     []*models.AuditLog
	inactive      bool
}

func (m *mockAuthUserRepo) UpsertBySubject(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	if user.ID == "" {
		user.ID = "user-1"
	}
	cp := *user
	cp.Active = !m.inactive
	m.users[user.ID] = &cp
	return nil
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	cp := *token
	m.refreshTokens[token.Token] = &cp
	return nil
}

func (m *mockAuthUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revoked = append(m.revoked, id)
	return nil
}

func (m *mockAuthUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (m *mockAuthUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockRosterMatcher struct {
	matches map[string]*models.RosterMatch
	linked  []string
}

func (m *mockRosterMatcher) MatchByEmail(ctx context.Context, email string) (*models.RosterMatch, error) {
	if match, ok := m.matches[email]; ok {
		return match, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterMatcher) Link(ctx context.Context, role models.UserRole, rosterID, userID string) error {
	m.linked = append(m.linked, rosterID)
	return nil
}

func authConfig() config.AuthConfig {
	return config.AuthConfig{
		AllowedDomain:     "stpaulclark.com",
		TestAccounts:      []string{"tester@gmail.com"},
		JWTSecret:         "test_secret",
		JWTIssuer:         "merit-api",
		AccessExpiration:  time.Hour,
		RefreshExpiration: 24 * time.Hour,
	}
}

func TestAuthCallbackResolvesRole(t *testing.T) {
	verifier := &mockVerifier{identity: &models.Identity{Subject: "sub-1", Email: "Jane.Teacher@stpaulclark.com", FullName: "Jane Teacher"}}
	users := &mockAuthUserRepo{}
	roster := &mockRosterMatcher{matches: map[string]*models.RosterMatch{
		"jane.teacher@stpaulclark.com": {Role: models.RoleTeacher, RosterID: "t-1", FullName: "Jane T."},
	}}
	svc := NewAuthService(verifier, users, roster, authConfig(), nil, nil)

	resp, err := svc.Callback(context.Background(), models.CallbackRequest{IDToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)
	assert.Equal(t, "t-1", resp.User.RosterID)
	// The roster name wins over the identity-provider name.
	assert.Equal(t, "Jane T.", resp.User.FullName)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, []string{"t-1"}, roster.linked)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "t-1", claims.RosterID)
}

func TestAuthCallbackDomainGate(t *testing.T) {
	verifier := &mockVerifier{identity: &models.Identity{Subject: "sub-1", Email: "someone@gmail.com"}}
	svc := NewAuthService(verifier, &mockAuthUserRepo{}, &mockRosterMatcher{}, authConfig(), nil, nil)

	_, err := svc.Callback(context.Background(), models.CallbackRequest{IDToken: "token"})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrUnauthorizedDomain.Code, apiErr.Code)
}

func TestAuthCallbackTestAccountBypassesDomain(t *testing.T) {
	verifier := &mockVerifier{identity: &models.Identity{Subject: "sub-1", Email: "tester@gmail.com", FullName: "Test Account"}}
	roster := &mockRosterMatcher{matches: map[string]*models.RosterMatch{
		"tester@gmail.com": {Role: models.RoleAdmin, RosterID: "a-1"},
	}}
	svc := NewAuthService(verifier, &mockAuthUserRepo{}, roster, authConfig(), nil, nil)

	resp, err := svc.Callback(context.Background(), models.CallbackRequest{IDToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
}

func TestAuthCallbackNotOnRoster(t *testing.T) {
	verifier := &mockVerifier{identity: &models.Identity{Subject: "sub-1", Email: "ghost@stpaulclark.com"}}
	svc := NewAuthService(verifier, &mockAuthUserRepo{}, &mockRosterMatcher{}, authConfig(), nil, nil)

	_, err := svc.Callback(context.Background(), models.CallbackRequest{IDToken: "token"})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrUserNotFound.Code, apiErr.Code)
}

func TestAuthCallbackInactiveAccount(t *testing.T) {
	verifier := &mockVerifier{identity: &models.Identity{Subject: "sub-1", Email: "jane@stpaulclark.com"}}
	users := &mockAuthUserRepo{inactive: true}
	roster := &mockRosterMatcher{matches: map[string]*models.RosterMatch{
		"jane@stpaulclark.com": {Role: models.RoleTeacher, RosterID: "t-1"},
	}}
	svc := NewAuthService(verifier, users, roster, authConfig(), nil, nil)

	_, err := svc.Callback(context.Background(), models.CallbackRequest{IDToken: "token"})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, apiErr.Code)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	users := &mockAuthUserRepo{
		users: map[string]*models.User{
			"user-1": {ID: "user-1", Email: "jane@stpaulclark.com", Role: models.RoleTeacher, Active: true},
		},
		refreshTokens: map[string]*models.RefreshToken{
			"old-token": {ID: "rt-1", UserID: "user-1", Token: "old-token", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}
	roster := &mockRosterMatcher{matches: map[string]*models.RosterMatch{
		"jane@stpaulclark.com": {Role: models.RoleTeacher, RosterID: "t-1"},
	}}
	svc := NewAuthService(&mockVerifier{}, users, roster, authConfig(), nil, nil)

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Equal(t, []string{"rt-1"}, users.revoked)
}

func TestAuthRefreshRejectsExpired(t *testing.T) {
	users := &mockAuthUserRepo{
		refreshTokens: map[string]*models.RefreshToken{
			"old-token": {ID: "rt-1", UserID: "user-1", Token: "old-token", ExpiresAt: time.Now().Add(-time.Hour)},
		},
	}
	svc := NewAuthService(&mockVerifier{}, users, &mockRosterMatcher{}, authConfig(), nil, nil)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, apiErr.Code)
}

func TestAuthLogoutChecksOwnership(t *testing.T) {
	users := &mockAuthUserRepo{
		refreshTokens: map[string]*models.RefreshToken{
			"tok": {ID: "rt-1", UserID: "user-1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}
	svc := NewAuthService(&mockVerifier{}, users, &mockRosterMatcher{}, authConfig(), nil, nil)

	err := svc.Logout(context.Background(), Actor{UserID: "someone-else"}, "tok")
	require.Error(t, err)

	err = svc.Logout(context.Background(), Actor{UserID: "user-1"}, "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"rt-1"}, users.revoked)
}

func TestAuthValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(&mockVerifier{}, &mockAuthUserRepo{}, &mockRosterMatcher{}, authConfig(), nil, nil)

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)

	other := authConfig()
	other.JWTSecret = "different_secret"
	otherSvc := NewAuthService(&mockVerifier{}, &mockAuthUserRepo{}, &mockRosterMatcher{}, other, nil, nil)
	token, err := otherSvc.generateAccessToken(&models.User{ID: "user-1", Role: models.RoleTeacher}, "t-1")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}
