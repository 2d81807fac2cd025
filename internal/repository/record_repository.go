package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stpaulclark/merit-api/internal/models"
)

// QuotaError is returned when an issuance would push a teacher past the
// weekly merit limit. It carries the live numbers so callers can surface
// the remaining allowance.
type QuotaError struct {
	Limit int
	Used  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("weekly quota exceeded: %d of %d used", e.Used, e.Limit)
}

// Remaining returns the allowance left before the limit.
func (e *QuotaError) Remaining() int {
	if e.Limit < e.Used {
		return 0
	}
	return e.Limit - e.Used
}

// IssueParams bundles the period windows and thresholds one issuance needs.
// Everything is precomputed by the service so the transaction only reads
// and writes ledger rows.
type IssueParams struct {
	// Quota window (school week containing now). QuotaLimit <= 0 means the
	// issuer is exempt.
	WeekStart  time.Time
	WeekEnd    time.Time
	QuotaLimit int

	// Counting period for reward derivation.
	PeriodStart time.Time
	Month       string

	PassThreshold      int
	DetentionThreshold int

	// AccrueRaffle mints one raffle entry per merit point.
	AccrueRaffle bool
}

// RecordRepository manages persistence for the merit/demerit ledger.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a new repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Issue inserts a record and materializes any rewards it triggers inside a
// single serializable transaction: quota recheck, insert, threshold
// derivation and raffle accrual either all apply or none do. Reward rows are
// keyed on (student, month, count) so a concurrent duplicate derivation is a
// no-op rather than a double grant.
func (r *RecordRepository) Issue(ctx context.Context, rec *models.Record, p IssueParams) (*models.IssueResult, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin issue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result := &models.IssueResult{}

	if rec.Kind == models.RecordMerit && p.QuotaLimit > 0 {
		var used int
		err = tx.GetContext(ctx, &used,
			`SELECT COALESCE(SUM(quantity), 0) FROM records
WHERE teacher_id = $1 AND kind = 'merit' AND is_deleted = FALSE
  AND created_at >= $2 AND created_at <= $3`,
			rec.TeacherID, p.WeekStart, p.WeekEnd)
		if err != nil {
			return nil, fmt.Errorf("sum weekly merits: %w", err)
		}
		if used+rec.Quantity > p.QuotaLimit {
			return nil, &QuotaError{Limit: p.QuotaLimit, Used: used}
		}
		remaining := p.QuotaLimit - used - rec.Quantity
		result.RemainingQuota = &remaining
	}

	var before int
	err = tx.GetContext(ctx, &before,
		`SELECT COALESCE(SUM(quantity), 0) FROM records
WHERE student_id = $1 AND kind = $2 AND is_deleted = FALSE AND created_at >= $3`,
		rec.StudentID, rec.Kind, p.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("sum period total: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.IsDeleted = false

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO records (id, student_id, teacher_id, academic_year_id, kind, reason, location, quantity, created_at, updated_at, edited_by, is_deleted)
VALUES (:id, :student_id, :teacher_id, :academic_year_id, :kind, :reason, :location, :quantity, :created_at, :updated_at, :edited_by, :is_deleted)`,
		rec)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	after := before + rec.Quantity
	switch rec.Kind {
	case models.RecordMerit:
		result.MeritTotal = after
		for _, count := range crossings(before, after, p.PassThreshold) {
			pass, err := insertPassTx(ctx, tx, models.UniformPass{
				StudentID:      rec.StudentID,
				AcademicYearID: rec.AcademicYearID,
				Month:          p.Month,
				MeritsCount:    count,
				EarnedOn:       now,
			})
			if err != nil {
				return nil, err
			}
			if pass != nil {
				result.UniformPasses = append(result.UniformPasses, *pass)
			}
		}
		if p.AccrueRaffle {
			entries, err := accrueRaffleTx(ctx, tx, rec, p.Month, rec.Quantity)
			if err != nil {
				return nil, err
			}
			result.RaffleEntries = entries
		}
	case models.RecordDemerit:
		result.DemeritTotal = after
		for _, count := range crossings(before, after, p.DetentionThreshold) {
			det, err := insertDetentionTx(ctx, tx, models.Detention{
				StudentID:      rec.StudentID,
				AcademicYearID: rec.AcademicYearID,
				Month:          p.Month,
				DemeritsCount:  count,
				Status:         models.DetentionPending,
				TriggeredOn:    now,
			})
			if err != nil {
				return nil, err
			}
			if det != nil {
				result.Detentions = append(result.Detentions, *det)
			}
		}
	}

	if rec.Kind == models.RecordMerit {
		// Advisory counter only; the live sum above stays authoritative.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO weekly_quotas (id, teacher_id, week_start, merits_issued, quota_limit, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (teacher_id, week_start)
DO UPDATE SET merits_issued = weekly_quotas.merits_issued + EXCLUDED.merits_issued, updated_at = EXCLUDED.updated_at`,
			uuid.NewString(), rec.TeacherID, p.WeekStart, rec.Quantity, p.QuotaLimit, now)
		if err != nil {
			return nil, fmt.Errorf("bump quota counter: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue tx: %w", err)
	}
	result.Record = rec
	return result, nil
}

// crossings lists the threshold multiples crossed moving from before to
// after, e.g. before=3, after=11, step=5 yields [5, 10].
func crossings(before, after, step int) []int {
	if step <= 0 {
		return nil
	}
	var counts []int
	for n := before/step + 1; n*step <= after; n++ {
		counts = append(counts, n*step)
	}
	return counts
}

func insertPassTx(ctx context.Context, tx *sqlx.Tx, pass models.UniformPass) (*models.UniformPass, error) {
	pass.ID = uuid.NewString()
	pass.CreatedAt = time.Now()
	rows, err := sqlx.NamedQueryContext(ctx, tx,
		`INSERT INTO uniform_passes (id, student_id, academic_year_id, month, merits_count, earned_on, created_at)
VALUES (:id, :student_id, :academic_year_id, :month, :merits_count, :earned_on, :created_at)
ON CONFLICT (student_id, month, merits_count) DO NOTHING
RETURNING id`,
		pass)
	if err != nil {
		return nil, fmt.Errorf("insert uniform pass: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if !rows.Next() {
		// Already granted at this threshold; sticky rewards are never re-issued.
		return nil, nil
	}
	return &pass, nil
}

func insertDetentionTx(ctx context.Context, tx *sqlx.Tx, det models.Detention) (*models.Detention, error) {
	det.ID = uuid.NewString()
	det.CreatedAt = time.Now()
	rows, err := sqlx.NamedQueryContext(ctx, tx,
		`INSERT INTO detentions (id, student_id, academic_year_id, month, demerits_count, status, triggered_on, created_at)
VALUES (:id, :student_id, :academic_year_id, :month, :demerits_count, :status, :triggered_on, :created_at)
ON CONFLICT (student_id, month, demerits_count) DO NOTHING
RETURNING id`,
		det)
	if err != nil {
		return nil, fmt.Errorf("insert detention: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if !rows.Next() {
		return nil, nil
	}
	return &det, nil
}

func accrueRaffleTx(ctx context.Context, tx *sqlx.Tx, rec *models.Record, month string, entries int) (int, error) {
	var total int
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO raffle_entries (id, student_id, academic_year_id, month, total_entries, remaining_entries, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5, $6, $6)
ON CONFLICT (student_id, month)
DO UPDATE SET total_entries = raffle_entries.total_entries + EXCLUDED.total_entries,
              remaining_entries = raffle_entries.remaining_entries + EXCLUDED.remaining_entries,
              updated_at = EXCLUDED.updated_at
RETURNING total_entries`,
		uuid.NewString(), rec.StudentID, rec.AcademicYearID, month, entries, time.Now()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("accrue raffle entries: %w", err)
	}
	return total, nil
}

// FindByID loads a record regardless of its soft-delete flag.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.Record, error) {
	var rec models.Record
	err := r.db.GetContext(ctx, &rec,
		`SELECT id, student_id, teacher_id, academic_year_id, kind, reason, location, quantity, created_at, updated_at, edited_by, is_deleted
FROM records WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return &rec, nil
}

// Update persists an edit. Only reason, location and quantity are mutable.
func (r *RecordRepository) Update(ctx context.Context, rec *models.Record) error {
	rec.UpdatedAt = time.Now()
	_, err := r.db.NamedExecContext(ctx,
		`UPDATE records SET reason = :reason, location = :location, quantity = :quantity, edited_by = :edited_by, updated_at = :updated_at
WHERE id = :id AND is_deleted = FALSE`,
		rec)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// SoftDelete marks the record deleted. The row survives for auditability and
// the flag is never cleared.
func (r *RecordRepository) SoftDelete(ctx context.Context, id, editorID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET is_deleted = TRUE, edited_by = $2, updated_at = $3 WHERE id = $1 AND is_deleted = FALSE`,
		id, editorID, time.Now())
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SumQuantity totals non-deleted quantities for a student and kind from the
// given instant onward.
func (r *RecordRepository) SumQuantity(ctx context.Context, studentID string, kind models.RecordKind, from time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM records
WHERE student_id = $1 AND kind = $2 AND is_deleted = FALSE AND created_at >= $3`,
		studentID, kind, from)
	if err != nil {
		return 0, fmt.Errorf("sum quantity: %w", err)
	}
	return total, nil
}

// SumTeacherMerits totals non-deleted merit quantities a teacher issued
// inside [from, to].
func (r *RecordRepository) SumTeacherMerits(ctx context.Context, teacherID string, from, to time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM records
WHERE teacher_id = $1 AND kind = 'merit' AND is_deleted = FALSE AND created_at >= $2 AND created_at <= $3`,
		teacherID, from, to)
	if err != nil {
		return 0, fmt.Errorf("sum teacher merits: %w", err)
	}
	return total, nil
}

// SumTeacherKind totals non-deleted quantities of one kind a teacher issued
// from the given instant onward.
func (r *RecordRepository) SumTeacherKind(ctx context.Context, teacherID string, kind models.RecordKind, from time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM records
WHERE teacher_id = $1 AND kind = $2 AND is_deleted = FALSE AND created_at >= $3`,
		teacherID, kind, from)
	if err != nil {
		return 0, fmt.Errorf("sum teacher records: %w", err)
	}
	return total, nil
}

// SumAll totals non-deleted quantities of one kind school-wide from the
// given instant onward.
func (r *RecordRepository) SumAll(ctx context.Context, kind models.RecordKind, from time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM records
WHERE kind = $1 AND is_deleted = FALSE AND created_at >= $2`,
		kind, from)
	if err != nil {
		return 0, fmt.Errorf("sum records: %w", err)
	}
	return total, nil
}

// TopStudents ranks students by points of one kind accrued since from.
func (r *RecordRepository) TopStudents(ctx context.Context, kind models.RecordKind, from time.Time, limit int) ([]models.TopStudent, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var rows []models.TopStudent
	err := r.db.SelectContext(ctx, &rows,
		`SELECT r.student_id, s.full_name, s.grade, s.section, SUM(r.quantity) AS total
FROM records r JOIN students s ON s.id = r.student_id
WHERE r.kind = $1 AND r.is_deleted = FALSE AND r.created_at >= $2
GROUP BY r.student_id, s.full_name, s.grade, s.section
ORDER BY total DESC, s.full_name ASC
LIMIT $3`,
		kind, from, limit)
	if err != nil {
		return nil, fmt.Errorf("rank students: %w", err)
	}
	return rows, nil
}

// List returns ledger records per provided filter.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	base := "FROM records"
	where := []string{"1=1"}
	args := []interface{}{}
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size
	query := fmt.Sprintf(`SELECT id, student_id, teacher_id, academic_year_id, kind, reason, location, quantity, created_at, updated_at, edited_by, is_deleted
%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	return records, total, nil
}
