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
	"github.com/stpaulclark/merit-api/pkg/config"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type mockRecordRepo struct {
	items      map[string]*models.Record
	issued     []repository.IssueParams
	issueErr   error
	result     *models.IssueResult
	updated    []*models.Record
	deleted    []string
	listResult []models.Record
	listTotal  int
	listFilter models.RecordFilter
}

func (m *mockRecordRepo) Issue(ctx context.Context, rec *models.Record, p repository.IssueParams) (*models.IssueResult, error) {
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	m.issued = append(m.issued, p)
	rec.ID = "rec-1"
	if m.result != nil {
		m.result.Record = rec
		return m.result, nil
	}
	return &models.IssueResult{Record: rec}, nil
}

func (m *mockRecordRepo) FindByID(ctx context.Context, id string) (*models.Record, error) {
	if rec, ok := m.items[id]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRecordRepo) Update(ctx context.Context, rec *models.Record) error {
	cp := *rec
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockRecordRepo) SoftDelete(ctx context.Context, id, editorID string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRecordRepo) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	m.listFilter = filter
	return m.listResult, m.listTotal, nil
}

type mockQuotaLimiter struct {
	limit  int
	called bool
}

func (m *mockQuotaLimiter) Limit(ctx context.Context, teacherID string, weekStart time.Time, fallback int) (int, error) {
	m.called = true
	return m.limit, nil
}

type mockSettingsSource struct {
	resetDate time.Time
}

func (m *mockSettingsSource) ResetDate(ctx context.Context) (time.Time, error) {
	return m.resetDate, nil
}

type mockYearSource struct {
	year *models.AcademicYear
}

func (m *mockYearSource) Active(ctx context.Context) (*models.AcademicYear, error) {
	if m.year == nil {
		return nil, sql.ErrNoRows
	}
	return m.year, nil
}

type mockStudentFinder struct {
	students map[string]*models.Student
}

func (m *mockStudentFinder) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditWriter struct {
	logs []*models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func ledgerConfig() config.LedgerConfig {
	return config.LedgerConfig{
		EditWindow:         time.Hour,
		MeritMaxQuantity:   5,
		DemeritMaxQuantity: 10,
		WeeklyQuotaDefault: 5,
		PassThreshold:      5,
		DetentionThreshold: 3,
	}
}

func newTestLedgerService(records *mockRecordRepo, quotas *mockQuotaLimiter, audit *mockAuditWriter) *LedgerService {
	roster := &mockStudentFinder{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", Active: true},
		"stu-2": {ID: "stu-2", Active: false},
	}}
	return NewLedgerService(records, quotas, &mockSettingsSource{}, &mockYearSource{}, roster,
		audit, nil, nil, ledgerConfig(), true, nil, nil)
}

func TestLedgerIssueMerit(t *testing.T) {
	records := &mockRecordRepo{}
	quotas := &mockQuotaLimiter{limit: 5}
	audit := &mockAuditWriter{}
	svc := newTestLedgerService(records, quotas, audit)

	actor := Actor{UserID: "teach-1", Role: models.RoleTeacher}
	result, err := svc.Issue(context.Background(), actor, IssueRequest{
		StudentID: "stu-1",
		Kind:      "merit",
		Reason:    "helped a classmate",
		Quantity:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", result.Record.StudentID)
	assert.Equal(t, "teach-1", result.Record.TeacherID)

	require.Len(t, records.issued, 1)
	params := records.issued[0]
	assert.True(t, quotas.called)
	assert.Equal(t, 5, params.QuotaLimit)
	assert.True(t, params.AccrueRaffle)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRecordIssue, audit.logs[0].Action)
}

func TestLedgerIssueDemeritSkipsQuota(t *testing.T) {
	records := &mockRecordRepo{}
	quotas := &mockQuotaLimiter{limit: 5}
	svc := newTestLedgerService(records, quotas, &mockAuditWriter{})

	_, err := svc.Issue(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, IssueRequest{
		StudentID: "stu-1",
		Kind:      "demerit",
		Reason:    "uniform violation",
		Quantity:  1,
	})
	require.NoError(t, err)
	assert.False(t, quotas.called)
	require.Len(t, records.issued, 1)
	assert.Zero(t, records.issued[0].QuotaLimit)
	assert.False(t, records.issued[0].AccrueRaffle)
}

func TestLedgerIssueQuotaExemptRoles(t *testing.T) {
	records := &mockRecordRepo{}
	quotas := &mockQuotaLimiter{limit: 5}
	svc := newTestLedgerService(records, quotas, &mockAuditWriter{})

	_, err := svc.Issue(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, IssueRequest{
		StudentID: "stu-1",
		Kind:      "merit",
		Reason:    "academic excellence",
		Quantity:  3,
	})
	require.NoError(t, err)
	assert.False(t, quotas.called)
}

func TestLedgerIssueQuotaExceeded(t *testing.T) {
	records := &mockRecordRepo{issueErr: &repository.QuotaError{Limit: 5, Used: 5}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{limit: 5}, &mockAuditWriter{})

	_, err := svc.Issue(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, IssueRequest{
		StudentID: "stu-1",
		Kind:      "merit",
		Reason:    "helped a classmate",
		Quantity:  1,
	})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, apiErr.Code)
	assert.Equal(t, 5, apiErr.Details["limit"])
	assert.Equal(t, 0, apiErr.Details["remaining"])
}

func TestLedgerIssueForbiddenForStudents(t *testing.T) {
	svc := newTestLedgerService(&mockRecordRepo{}, &mockQuotaLimiter{}, &mockAuditWriter{})

	_, err := svc.Issue(context.Background(), Actor{UserID: "stu-1", Role: models.RoleStudent}, IssueRequest{
		StudentID: "stu-1",
		Kind:      "merit",
		Reason:    "self service",
		Quantity:  1,
	})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, apiErr.Code)
}

func TestLedgerIssueInactiveStudent(t *testing.T) {
	svc := newTestLedgerService(&mockRecordRepo{}, &mockQuotaLimiter{limit: 5}, &mockAuditWriter{})

	_, err := svc.Issue(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, IssueRequest{
		StudentID: "stu-2",
		Kind:      "merit",
		Reason:    "helped a classmate",
		Quantity:  1,
	})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrValidation.Code, apiErr.Code)
}

func TestLedgerIssueQuantityCaps(t *testing.T) {
	svc := newTestLedgerService(&mockRecordRepo{}, &mockQuotaLimiter{limit: 5}, &mockAuditWriter{})
	actor := Actor{UserID: "teach-1", Role: models.RoleTeacher}

	_, err := svc.Issue(context.Background(), actor, IssueRequest{
		StudentID: "stu-1", Kind: "merit", Reason: "x", Quantity: 6,
	})
	require.Error(t, err)

	_, err = svc.Issue(context.Background(), actor, IssueRequest{
		StudentID: "stu-1", Kind: "demerit", Reason: "x", Quantity: 11,
	})
	require.Error(t, err)
}

func TestLedgerEditInsideWindow(t *testing.T) {
	created := time.Now().Add(-59 * time.Minute)
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", StudentID: "stu-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "old", Quantity: 1, CreatedAt: created},
	}}
	audit := &mockAuditWriter{}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, audit)

	reason := "corrected reason"
	quantity := 3
	rec, err := svc.Edit(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, "rec-1", models.RecordPatch{
		Reason:   &reason,
		Quantity: &quantity,
	})
	require.NoError(t, err)
	assert.Equal(t, "corrected reason", rec.Reason)
	assert.Equal(t, 3, rec.Quantity)
	require.NotNil(t, rec.EditedBy)
	assert.Equal(t, "teach-1", *rec.EditedBy)
	require.Len(t, records.updated, 1)
	assert.Len(t, audit.logs, 1)
}

func TestLedgerEditWindowExpired(t *testing.T) {
	created := time.Now().Add(-61 * time.Minute)
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "old", Quantity: 1, CreatedAt: created},
	}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	reason := "late edit"
	_, err := svc.Edit(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, "rec-1", models.RecordPatch{Reason: &reason})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrEditWindowExpired.Code, apiErr.Code)
}

func TestLedgerEditOtherIssuerForbidden(t *testing.T) {
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "old", Quantity: 1, CreatedAt: time.Now()},
	}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	reason := "not mine"
	_, err := svc.Edit(context.Background(), Actor{UserID: "teach-2", Role: models.RoleTeacher}, "rec-1", models.RecordPatch{Reason: &reason})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, apiErr.Code)
}

func TestLedgerEditAdminOverride(t *testing.T) {
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "old", Quantity: 1, CreatedAt: time.Now()},
	}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	reason := "admin fix"
	rec, err := svc.Edit(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "rec-1", models.RecordPatch{Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "admin fix", rec.Reason)
}

func TestLedgerSoftDelete(t *testing.T) {
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "x", Quantity: 1, CreatedAt: time.Now()},
	}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	err := svc.SoftDelete(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1"}, records.deleted)
}

func TestLedgerDeletedRecordNotEditable(t *testing.T) {
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "x", Quantity: 1, CreatedAt: time.Now(), IsDeleted: true},
	}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	reason := "resurrect"
	_, err := svc.Edit(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, "rec-1", models.RecordPatch{Reason: &reason})
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, apiErr.Code)
}

func TestLedgerGetDeletedVisibleToAdminOnly(t *testing.T) {
	records := &mockRecordRepo{items: map[string]*models.Record{
		"rec-1": {ID: "rec-1", TeacherID: "teach-1", IsDeleted: true},
	}}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	_, err := svc.Get(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, "rec-1")
	require.Error(t, err)

	rec, err := svc.Get(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "rec-1")
	require.NoError(t, err)
	assert.True(t, rec.IsDeleted)
}

func TestLedgerListStripsDeletedForNonAdmins(t *testing.T) {
	records := &mockRecordRepo{}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	_, _, err := svc.List(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, models.RecordFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.False(t, records.listFilter.IncludeDeleted)

	_, _, err = svc.List(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, models.RecordFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.True(t, records.listFilter.IncludeDeleted)
}

func TestLedgerListForbiddenForStudents(t *testing.T) {
	svc := newTestLedgerService(&mockRecordRepo{}, &mockQuotaLimiter{}, &mockAuditWriter{})

	_, _, err := svc.List(context.Background(), Actor{UserID: "stu-1", Role: models.RoleStudent}, models.RecordFilter{})
	require.Error(t, err)
}

func TestLedgerListForStudentForcesScope(t *testing.T) {
	records := &mockRecordRepo{}
	svc := newTestLedgerService(records, &mockQuotaLimiter{}, &mockAuditWriter{})

	_, _, err := svc.ListForStudent(context.Background(), "stu-1", models.RecordFilter{StudentID: "someone-else", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", records.listFilter.StudentID)
	assert.False(t, records.listFilter.IncludeDeleted)
}
