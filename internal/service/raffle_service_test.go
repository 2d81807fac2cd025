package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stpaulclark/merit-api/internal/models"
	"github.com/stpaulclark/merit-api/internal/repository"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type mockRaffleRepo struct {
	entries     int
	prizes      []models.RafflePrize
	created     []*models.RafflePrize
	drawn       *models.RafflePrize
	drawErr     error
	listedMonth string
}

func (m *mockRaffleRepo) EntriesForStudent(ctx context.Context, studentID string, since time.Time) (int, error) {
	return m.entries, nil
}

func (m *mockRaffleRepo) CreatePrize(ctx context.Context, prize *models.RafflePrize) error {
	prize.ID = "prize-1"
	m.created = append(m.created, prize)
	return nil
}

func (m *mockRaffleRepo) ListPrizes(ctx context.Context, month string) ([]models.RafflePrize, error) {
	m.listedMonth = month
	return m.prizes, nil
}

func (m *mockRaffleRepo) DrawPrize(ctx context.Context, prizeID string) (*models.RafflePrize, error) {
	if m.drawErr != nil {
		return nil, m.drawErr
	}
	return m.drawn, nil
}

func newTestRaffleService(raffle *mockRaffleRepo) *RaffleService {
	return NewRaffleService(raffle, &mockYearSource{}, &mockSettingsSource{}, &mockAuditWriter{}, nil, nil)
}

func TestRaffleCreatePrizeDefaultsToCurrentMonth(t *testing.T) {
	raffle := &mockRaffleRepo{}
	svc := newTestRaffleService(raffle)

	prize, err := svc.CreatePrize(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, CreatePrizeRequest{PrizeName: "Movie tickets"})
	require.NoError(t, err)
	assert.Equal(t, "Movie tickets", prize.PrizeName)
	assert.NotEmpty(t, prize.Month)
	require.Len(t, raffle.created, 1)
}

func TestRaffleCreatePrizeForbiddenForTeachers(t *testing.T) {
	svc := newTestRaffleService(&mockRaffleRepo{})

	_, err := svc.CreatePrize(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, CreatePrizeRequest{PrizeName: "Movie tickets"})
	require.Error(t, err)
}

func TestRaffleCreatePrizeRequiresName(t *testing.T) {
	svc := newTestRaffleService(&mockRaffleRepo{})

	_, err := svc.CreatePrize(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, CreatePrizeRequest{})
	require.Error(t, err)
}

func TestRaffleListPrizesDefaultsToCurrentMonth(t *testing.T) {
	raffle := &mockRaffleRepo{prizes: []models.RafflePrize{{ID: "prize-1"}}}
	svc := newTestRaffleService(raffle)

	prizes, err := svc.ListPrizes(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, prizes, 1)
	assert.NotEmpty(t, raffle.listedMonth)
}

func TestRaffleDraw(t *testing.T) {
	winner := "stu-1"
	raffle := &mockRaffleRepo{drawn: &models.RafflePrize{ID: "prize-1", WinnerID: &winner}}
	audit := &mockAuditWriter{}
	svc := NewRaffleService(raffle, &mockYearSource{}, &mockSettingsSource{}, audit, nil, nil)

	prize, err := svc.Draw(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "prize-1")
	require.NoError(t, err)
	require.NotNil(t, prize.WinnerID)
	assert.Equal(t, "stu-1", *prize.WinnerID)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRaffleDraw, audit.logs[0].Action)
}

func TestRaffleDrawAlreadyDrawn(t *testing.T) {
	raffle := &mockRaffleRepo{drawErr: repository.ErrPrizeDrawn}
	svc := newTestRaffleService(raffle)

	_, err := svc.Draw(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "prize-1")
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrConflict.Code, apiErr.Code)
}

func TestRaffleDrawNoEntries(t *testing.T) {
	raffle := &mockRaffleRepo{drawErr: repository.ErrNoRaffleEntries}
	svc := newTestRaffleService(raffle)

	_, err := svc.Draw(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, "prize-1")
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrConflict.Code, apiErr.Code)
}

func TestRaffleDrawForbiddenForTeachers(t *testing.T) {
	svc := newTestRaffleService(&mockRaffleRepo{})

	_, err := svc.Draw(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, "prize-1")
	require.Error(t, err)
}

func TestRaffleEntries(t *testing.T) {
	svc := newTestRaffleService(&mockRaffleRepo{entries: 7})

	entries, err := svc.Entries(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 7, entries)
}
