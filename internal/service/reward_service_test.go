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
	"github.com/stpaulclark/merit-api/internal/repository"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type mockRewardRepo struct {
	passes          []models.UniformPass
	detentions      map[string]*models.Detention
	passCount       int
	detentionCount  int
	insertedPasses  []models.UniformPass
	insertedDets    []models.Detention
	duplicatePasses map[int]bool
	resolved        []string
	resolveErr      error
}

func (m *mockRewardRepo) ListPasses(ctx context.Context, studentID string, since time.Time) ([]models.UniformPass, error) {
	return m.passes, nil
}

func (m *mockRewardRepo) CountPasses(ctx context.Context, studentID string, since time.Time) (int, error) {
	return m.passCount, nil
}

func (m *mockRewardRepo) InsertPass(ctx context.Context, pass models.UniformPass) (*models.UniformPass, error) {
	if m.duplicatePasses[pass.MeritsCount] {
		return nil, nil
	}
	m.insertedPasses = append(m.insertedPasses, pass)
	return &pass, nil
}

func (m *mockRewardRepo) ListDetentions(ctx context.Context, filter repository.DetentionFilter) ([]models.Detention, int, error) {
	return nil, 0, nil
}

func (m *mockRewardRepo) CountDetentions(ctx context.Context, studentID string, since time.Time) (int, error) {
	return m.detentionCount, nil
}

func (m *mockRewardRepo) InsertDetention(ctx context.Context, det models.Detention) (*models.Detention, error) {
	m.insertedDets = append(m.insertedDets, det)
	return &det, nil
}

func (m *mockRewardRepo) FindDetention(ctx context.Context, id string) (*models.Detention, error) {
	if det, ok := m.detentions[id]; ok {
		cp := *det
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRewardRepo) ResolveDetention(ctx context.Context, id string, status models.DetentionStatus) error {
	if m.resolveErr != nil {
		return m.resolveErr
	}
	m.resolved = append(m.resolved, id)
	return nil
}

type mockQuantitySummer struct {
	merits   int
	demerits int
}

func (m *mockQuantitySummer) SumQuantity(ctx context.Context, studentID string, kind models.RecordKind, from time.Time) (int, error) {
	if kind == models.RecordMerit {
		return m.merits, nil
	}
	return m.demerits, nil
}

func newTestRewardService(rewards *mockRewardRepo, sums *mockQuantitySummer) *RewardService {
	return NewRewardService(rewards, sums, &mockSettingsSource{}, &mockYearSource{}, &mockAuditWriter{}, 5, 3, nil)
}

func TestRewardProgressThresholds(t *testing.T) {
	rewards := &mockRewardRepo{passCount: 2, detentionCount: 1}
	svc := newTestRewardService(rewards, &mockQuantitySummer{merits: 12, demerits: 4})

	progress, err := svc.Progress(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 12, progress.MeritTotal)
	assert.Equal(t, 4, progress.DemeritTotal)
	// 12 merits: next pass lands at 15, 2 points into the current block of 5.
	assert.Equal(t, 15, progress.NextPassAt)
	assert.Equal(t, 2, progress.ProgressToNextPass)
	// 4 demerits: the next detention triggers at 6.
	assert.Equal(t, 6, progress.NextDetentionAt)
	assert.Equal(t, 2, progress.PassesEarned)
	assert.Equal(t, 1, progress.DetentionsTotal)
}

func TestRewardProgressAtExactThreshold(t *testing.T) {
	svc := newTestRewardService(&mockRewardRepo{}, &mockQuantitySummer{merits: 10, demerits: 3})

	progress, err := svc.Progress(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 15, progress.NextPassAt)
	assert.Equal(t, 0, progress.ProgressToNextPass)
	assert.Equal(t, 6, progress.NextDetentionAt)
}

func TestRewardResolveDetention(t *testing.T) {
	rewards := &mockRewardRepo{detentions: map[string]*models.Detention{
		"det-1": {ID: "det-1", StudentID: "stu-1", Status: models.DetentionPending},
	}}
	svc := newTestRewardService(rewards, &mockQuantitySummer{})

	det, err := svc.ResolveDetention(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, "det-1", models.DetentionServed)
	require.NoError(t, err)
	assert.Equal(t, models.DetentionServed, det.Status)
	assert.Equal(t, []string{"det-1"}, rewards.resolved)
}

func TestRewardResolveDetentionAlreadyResolved(t *testing.T) {
	rewards := &mockRewardRepo{
		detentions: map[string]*models.Detention{
			"det-1": {ID: "det-1", Status: models.DetentionServed},
		},
		resolveErr: repository.ErrDetentionResolved,
	}
	svc := newTestRewardService(rewards, &mockQuantitySummer{})

	_, err := svc.ResolveDetention(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "det-1", models.DetentionExcused)
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrConflict.Code, apiErr.Code)
}

func TestRewardResolveDetentionRejectsPendingTarget(t *testing.T) {
	svc := newTestRewardService(&mockRewardRepo{}, &mockQuantitySummer{})

	_, err := svc.ResolveDetention(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, "det-1", models.DetentionPending)
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrValidation.Code, apiErr.Code)
}

func TestRewardResolveDetentionLeadershipOnly(t *testing.T) {
	rewards := &mockRewardRepo{detentions: map[string]*models.Detention{
		"det-1": {ID: "det-1", StudentID: "stu-1", Status: models.DetentionPending},
	}}
	svc := newTestRewardService(rewards, &mockQuantitySummer{})

	for _, role := range []models.UserRole{models.RoleTeacher, models.RoleStudent} {
		_, err := svc.ResolveDetention(context.Background(), Actor{UserID: "u-1", Role: role}, "det-1", models.DetentionServed)
		require.Error(t, err)

		var apiErr *appErrors.Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, appErrors.ErrForbidden.Code, apiErr.Code)
	}
	assert.Empty(t, rewards.resolved)
}

func TestRewardRederiveBackfills(t *testing.T) {
	rewards := &mockRewardRepo{duplicatePasses: map[int]bool{5: true}}
	svc := newTestRewardService(rewards, &mockQuantitySummer{merits: 12, demerits: 7})

	result, err := svc.Rederive(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "stu-1")
	require.NoError(t, err)
	// 12 merits warrant passes at 5 and 10; the pass at 5 already exists.
	require.Len(t, result.NewPasses, 1)
	assert.Equal(t, 10, result.NewPasses[0].MeritsCount)
	// 7 demerits warrant detentions at 3 and 6.
	require.Len(t, result.NewDetentions, 2)
	assert.Equal(t, 3, result.NewDetentions[0].DemeritsCount)
	assert.Equal(t, 6, result.NewDetentions[1].DemeritsCount)
	assert.Equal(t, models.DetentionPending, result.NewDetentions[0].Status)
}

func TestRewardRederiveAdminOnly(t *testing.T) {
	svc := newTestRewardService(&mockRewardRepo{}, &mockQuantitySummer{})

	_, err := svc.Rederive(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, "stu-1")
	require.Error(t, err)
}
