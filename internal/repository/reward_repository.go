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

// ErrDetentionResolved is returned when a status update targets a detention
// that already left the pending state.
var ErrDetentionResolved = errors.New("detention already resolved")

// RewardRepository manages uniform passes and detentions.
type RewardRepository struct {
	db *sqlx.DB
}

// NewRewardRepository constructs a new repository.
func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// ListPasses returns a student's passes, newest first. A zero since lists
// the full history.
func (r *RewardRepository) ListPasses(ctx context.Context, studentID string, since time.Time) ([]models.UniformPass, error) {
	query := `SELECT id, student_id, academic_year_id, month, merits_count, earned_on, created_at
FROM uniform_passes WHERE student_id = $1`
	args := []interface{}{studentID}
	if !since.IsZero() {
		query += " AND earned_on >= $2"
		args = append(args, since)
	}
	query += " ORDER BY earned_on DESC"
	var passes []models.UniformPass
	if err := r.db.SelectContext(ctx, &passes, query, args...); err != nil {
		return nil, fmt.Errorf("list uniform passes: %w", err)
	}
	return passes, nil
}

// CountPasses counts a student's passes earned from since onward.
func (r *RewardRepository) CountPasses(ctx context.Context, studentID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM uniform_passes WHERE student_id = $1 AND earned_on >= $2`,
		studentID, since)
	if err != nil {
		return 0, fmt.Errorf("count uniform passes: %w", err)
	}
	return count, nil
}

// CountPassesBetween counts school-wide passes earned inside [from, to].
func (r *RewardRepository) CountPassesBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM uniform_passes WHERE earned_on >= $1 AND earned_on <= $2`,
		from, to)
	if err != nil {
		return 0, fmt.Errorf("count weekly passes: %w", err)
	}
	return count, nil
}

// InsertPass materializes a pass unless one already exists at that
// (student, month, count) key. Returns nil when the grant was a duplicate.
func (r *RewardRepository) InsertPass(ctx context.Context, pass models.UniformPass) (*models.UniformPass, error) {
	pass.ID = uuid.NewString()
	pass.CreatedAt = time.Now()
	rows, err := sqlx.NamedQueryContext(ctx, r.db,
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
		return nil, nil
	}
	return &pass, nil
}

// DetentionFilter narrows detention listings.
type DetentionFilter struct {
	StudentID string
	Status    models.DetentionStatus
	Month     string
	Page      int
	PageSize  int
}

// ListDetentions returns detentions per provided filter, newest first.
func (r *RewardRepository) ListDetentions(ctx context.Context, filter DetentionFilter) ([]models.Detention, int, error) {
	base := "FROM detentions"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Month != "" {
		where = append(where, fmt.Sprintf("month = $%d", len(args)+1))
		args = append(args, filter.Month)
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
	query := fmt.Sprintf(`SELECT id, student_id, academic_year_id, month, demerits_count, status, triggered_on, created_at
%s WHERE %s ORDER BY triggered_on DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var detentions []models.Detention
	if err := r.db.SelectContext(ctx, &detentions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list detentions: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count detentions: %w", err)
	}
	return detentions, total, nil
}

// CountPendingDetentions counts unresolved detentions school-wide.
func (r *RewardRepository) CountPendingDetentions(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM detentions WHERE status = 'pending'`)
	if err != nil {
		return 0, fmt.Errorf("count pending detentions: %w", err)
	}
	return count, nil
}

// CountDetentions counts a student's detentions triggered from since onward.
func (r *RewardRepository) CountDetentions(ctx context.Context, studentID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM detentions WHERE student_id = $1 AND triggered_on >= $2`,
		studentID, since)
	if err != nil {
		return 0, fmt.Errorf("count detentions: %w", err)
	}
	return count, nil
}

// InsertDetention materializes a pending detention unless one already exists
// at that (student, month, count) key.
func (r *RewardRepository) InsertDetention(ctx context.Context, det models.Detention) (*models.Detention, error) {
	det.ID = uuid.NewString()
	det.CreatedAt = time.Now()
	if det.Status == "" {
		det.Status = models.DetentionPending
	}
	rows, err := sqlx.NamedQueryContext(ctx, r.db,
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

// FindDetention loads a detention by id.
func (r *RewardRepository) FindDetention(ctx context.Context, id string) (*models.Detention, error) {
	var det models.Detention
	err := r.db.GetContext(ctx, &det,
		`SELECT id, student_id, academic_year_id, month, demerits_count, status, triggered_on, created_at
FROM detentions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find detention: %w", err)
	}
	return &det, nil
}

// ResolveDetention moves a pending detention to served or excused. The
// WHERE clause guards the transition so a resolved detention never reopens
// or flips.
func (r *RewardRepository) ResolveDetention(ctx context.Context, id string, status models.DetentionStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE detentions SET status = $2 WHERE id = $1 AND status = 'pending'`,
		id, status)
	if err != nil {
		return fmt.Errorf("resolve detention: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDetentionResolved
	}
	return nil
}
