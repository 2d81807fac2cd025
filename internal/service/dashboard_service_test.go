package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/repository"
)

type mockDashboardRecords struct {
	schoolMerits   int
	schoolDemerits int
	teacherMerits  int
	teacherDems    int
	top            []models.TopStudent
	recent         []models.Record
}

func (m *mockDashboardRecords) SumAll(ctx context.Context, kind models.RecordKind, from time.Time) (int, error) {
	if kind == models.RecordMerit {
		return m.schoolMerits, nil
	}
	return m.schoolDemerits, nil
}

func (m *mockDashboardRecords) SumTeacherKind(ctx context.Context, teacherID string, kind models.RecordKind, from time.Time) (int, error) {
	if kind == models.RecordMerit {
		return m.teacherMerits, nil
	}
	return m.teacherDems, nil
}

func (m *mockDashboardRecords) TopStudents(ctx context.Context, kind models.RecordKind, from time.Time, limit int) ([]models.TopStudent, error) {
	return m.top, nil
}

func (m *mockDashboardRecords) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	return m.recent, len(m.recent), nil
}

type mockDashboardRewards struct {
	pendingDetentions int
	passesThisWeek    int
	passes            []models.UniformPass
	detentions        []models.Detention
}

func (m *mockDashboardRewards) CountPendingDetentions(ctx context.Context) (int, error) {
	return m.pendingDetentions, nil
}

func (m *mockDashboardRewards) CountPassesBetween(ctx context.Context, from, to time.Time) (int, error) {
	return m.passesThisWeek, nil
}

func (m *mockDashboardRewards) ListDetentions(ctx context.Context, filter repository.DetentionFilter) ([]models.Detention, int, error) {
	return m.detentions, len(m.detentions), nil
}

func (m *mockDashboardRewards) ListPasses(ctx context.Context, studentID string, since time.Time) ([]models.UniformPass, error) {
	return m.passes, nil
}

func newTestDashboardService(records *mockDashboardRecords, rewards *mockDashboardRewards, raffle raffleEntrySource) *DashboardService {
	progress := NewRewardService(&mockRewardRepo{passCount: 2, detentionCount: 1}, &mockQuantitySummer{merits: 12, demerits: 4}, &mockSettingsSource{}, &mockYearSource{}, &mockAuditWriter{}, 5, 3, nil)
	quota := NewQuotaService(&mockQuotaRepo{}, &mockMeritSummer{used: 2}, 5, nil)
	return NewDashboardService(records, rewards, raffle, progress, quota, &mockSettingsSource{}, nil, time.Minute, nil)
}

func TestDashboardSchoolSummary(t *testing.T) {
	records := &mockDashboardRecords{
		schoolMerits:   120,
		schoolDemerits: 45,
		top:            []models.TopStudent{{StudentID: "stu-1", Total: 18}},
	}
	rewards := &mockDashboardRewards{pendingDetentions: 3, passesThisWeek: 2}
	svc := newTestDashboardService(records, rewards, nil)

	summary, err := svc.SchoolSummary(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal})
	require.NoError(t, err)
	assert.Equal(t, 120, summary.MeritsTotal)
	assert.Equal(t, 45, summary.DemeritsTotal)
	assert.Equal(t, 3, summary.PendingDetentions)
	assert.Equal(t, 2, summary.PassesThisWeek)
	require.Len(t, summary.TopMeritStudents, 1)
	assert.Equal(t, "stu-1", summary.TopMeritStudents[0].StudentID)
}

func TestDashboardSchoolSummaryLeadershipOnly(t *testing.T) {
	svc := newTestDashboardService(&mockDashboardRecords{}, &mockDashboardRewards{}, nil)

	_, err := svc.SchoolSummary(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher})
	require.Error(t, err)
}

func TestDashboardStudentSummary(t *testing.T) {
	rewards := &mockDashboardRewards{
		passes:     []models.UniformPass{{ID: "pass-1", MeritsCount: 5}},
		detentions: []models.Detention{{ID: "det-1", Status: models.DetentionPending}},
	}
	svc := newTestDashboardService(&mockDashboardRecords{}, rewards, &mockRaffleRepo{entries: 7})

	summary, err := svc.StudentSummary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Progress.MeritTotal)
	assert.Equal(t, 15, summary.Progress.NextPassAt)
	assert.Len(t, summary.Passes, 1)
	assert.Len(t, summary.Detentions, 1)
	assert.Equal(t, 7, summary.RaffleEntries)
}

func TestDashboardTeacherSummary(t *testing.T) {
	records := &mockDashboardRecords{
		teacherMerits: 9,
		teacherDems:   1,
		recent:        []models.Record{{ID: "rec-1"}},
	}
	svc := newTestDashboardService(records, &mockDashboardRewards{}, nil)

	summary, err := svc.TeacherSummary(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Quota.Limit)
	assert.Equal(t, 2, summary.Quota.Used)
	assert.Equal(t, 3, summary.Quota.Remaining)
	assert.Equal(t, 9, summary.MeritsIssued)
	assert.Equal(t, 1, summary.DemeritsIssued)
	require.Len(t, summary.Recent, 1)

	_, err = svc.TeacherSummary(context.Background(), Actor{UserID: "stu-1", Role: models.RoleStudent})
	require.Error(t, err)
}
