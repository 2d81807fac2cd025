package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stpaulclark/merit-api/internal/models"
)

type mockSettingsRepo struct {
	resetDate time.Time
	setCalled bool
}

func (m *mockSettingsRepo) ResetDate(ctx context.Context) (time.Time, error) {
	return m.resetDate, nil
}

func (m *mockSettingsRepo) SetResetDate(ctx context.Context, ts time.Time) error {
	m.resetDate = ts
	m.setCalled = true
	return nil
}

func TestSettingsCurrentPeriod(t *testing.T) {
	reset := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	svc := NewSettingsService(&mockSettingsRepo{resetDate: reset}, &mockAuditWriter{}, nil, nil)

	info, err := svc.CurrentPeriod(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reset, info.ResetDate)
	assert.Equal(t, time.Friday, info.WeekStart.Weekday())
	assert.True(t, info.WeekEnd.After(info.WeekStart))
	assert.NotEmpty(t, info.Month)
}

func TestSettingsResetPeriod(t *testing.T) {
	repo := &mockSettingsRepo{resetDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	audit := &mockAuditWriter{}
	svc := NewSettingsService(repo, audit, nil, nil)

	before := time.Now()
	info, err := svc.ResetPeriod(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, repo.setCalled)
	assert.False(t, info.ResetDate.Before(before))

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionPeriodReset, audit.logs[0].Action)
}

func TestSettingsResetPeriodLeadershipOnly(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := NewSettingsService(repo, &mockAuditWriter{}, nil, nil)

	_, err := svc.ResetPeriod(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher})
	require.Error(t, err)
	assert.False(t, repo.setCalled)
}
