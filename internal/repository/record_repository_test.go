package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stpaulclark/merit-api/internal/models"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	// Named queries need dollar-placeholder rebinding.
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func issueParams() IssueParams {
	weekStart := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	return IssueParams{
		WeekStart:          weekStart,
		WeekEnd:            weekStart.AddDate(0, 0, 7).Add(-time.Nanosecond),
		QuotaLimit:         5,
		PeriodStart:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Month:              "2026-08",
		PassThreshold:      5,
		DetentionThreshold: 3,
		AccrueRaffle:       true,
	}
}

func TestRecordRepositoryIssueMeritDerivesPass(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	p := issueParams()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = $1 AND kind = 'merit'")).
		WithArgs("teach-1", p.WeekStart, p.WeekEnd).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND kind = $2")).
		WithArgs("stu-1", "merit", p.PeriodStart).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// 4 -> 6 crosses the pass threshold at 5.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO uniform_passes")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pass-1"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO raffle_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"total_entries"}).AddRow(6))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO weekly_quotas")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.Record{StudentID: "stu-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "helped a classmate", Quantity: 2}
	result, err := repo.Issue(context.Background(), rec, p)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Record.ID)
	require.NotNil(t, result.RemainingQuota)
	assert.Equal(t, 2, *result.RemainingQuota)
	assert.Equal(t, 6, result.MeritTotal)
	require.Len(t, result.UniformPasses, 1)
	assert.Equal(t, 5, result.UniformPasses[0].MeritsCount)
	assert.Equal(t, 6, result.RaffleEntries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryIssueQuotaExceeded(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	p := issueParams()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = $1 AND kind = 'merit'")).
		WithArgs("teach-1", p.WeekStart, p.WeekEnd).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(5))
	mock.ExpectRollback()

	rec := &models.Record{StudentID: "stu-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "helped", Quantity: 1}
	_, err := repo.Issue(context.Background(), rec, p)
	require.Error(t, err)

	var quotaErr *QuotaError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, 5, quotaErr.Limit)
	assert.Equal(t, 5, quotaErr.Used)
	assert.Equal(t, 0, quotaErr.Remaining())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryIssueDemeritDerivesDetention(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	p := issueParams()

	mock.ExpectBegin()
	// Demerits never touch the quota, so the first query is the period sum.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND kind = $2")).
		WithArgs("stu-1", "demerit", p.PeriodStart).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO detentions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("det-1"))
	mock.ExpectCommit()

	rec := &models.Record{StudentID: "stu-1", TeacherID: "teach-1", Kind: models.RecordDemerit, Reason: "uniform violation", Quantity: 1}
	result, err := repo.Issue(context.Background(), rec, p)
	require.NoError(t, err)
	assert.Equal(t, 3, result.DemeritTotal)
	assert.Nil(t, result.RemainingQuota)
	require.Len(t, result.Detentions, 1)
	assert.Equal(t, 3, result.Detentions[0].DemeritsCount)
	assert.Equal(t, models.DetentionPending, result.Detentions[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryIssueDuplicatePassIsNoOp(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	p := issueParams()
	p.AccrueRaffle = false

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE teacher_id = $1 AND kind = 'merit'")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND kind = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// ON CONFLICT DO NOTHING returns no row when the pass already exists.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO uniform_passes")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO weekly_quotas")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec := &models.Record{StudentID: "stu-1", TeacherID: "teach-1", Kind: models.RecordMerit, Reason: "helped", Quantity: 1}
	result, err := repo.Issue(context.Background(), rec, p)
	require.NoError(t, err)
	assert.Empty(t, result.UniformPasses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "academic_year_id", "kind", "reason", "location", "quantity", "created_at", "updated_at", "edited_by", "is_deleted"}).
		AddRow("rec-1", "stu-1", "teach-1", nil, "merit", "helped", nil, 2, time.Now(), time.Now(), nil, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnRows(rows)

	rec, err := repo.FindByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecordMerit, rec.Kind)
	assert.Equal(t, 2, rec.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET is_deleted = TRUE")).
		WithArgs("rec-1", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "rec-1", "admin-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySoftDeleteAlreadyDeleted(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET is_deleted = TRUE")).
		WithArgs("rec-1", "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "rec-1", "admin-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySumQuantity(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND kind = $2 AND is_deleted = FALSE AND created_at >= $3")).
		WithArgs("stu-1", "merit", from).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(12))

	total, err := repo.SumQuantity(context.Background(), "stu-1", models.RecordMerit, from)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryList(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "academic_year_id", "kind", "reason", "location", "quantity", "created_at", "updated_at", "edited_by", "is_deleted"}).
		AddRow("rec-1", "stu-1", "teach-1", nil, "merit", "helped", nil, 2, time.Now(), time.Now(), nil, false)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND is_deleted = FALSE AND student_id = $1 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs("stu-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM records WHERE 1=1 AND is_deleted = FALSE AND student_id = $1")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.RecordFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListIncludesDeletedForAudit(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "academic_year_id", "kind", "reason", "location", "quantity", "created_at", "updated_at", "edited_by", "is_deleted"}).
		AddRow("rec-1", "stu-1", "teach-1", nil, "merit", "helped", nil, 2, time.Now(), time.Now(), nil, true)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM records WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.RecordFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsDeleted)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrossings(t *testing.T) {
	assert.Equal(t, []int{5, 10}, crossings(3, 11, 5))
	assert.Equal(t, []int{5}, crossings(4, 6, 5))
	assert.Nil(t, crossings(5, 9, 5))
	assert.Equal(t, []int{3, 6}, crossings(0, 7, 3))
	assert.Nil(t, crossings(0, 10, 0))
}
