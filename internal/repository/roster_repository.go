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

// RosterRepository looks up and links the four roster tables. Role priority
// on ambiguous emails is admin > principal > teacher > student.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs a new repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// rosterTables in lookup priority order.
var rosterTables = []struct {
	table string
	role  models.UserRole
}{
	{"admins", models.RoleAdmin},
	{"principals", models.RolePrincipal},
	{"teachers", models.RoleTeacher},
	{"students", models.RoleStudent},
}

// MatchByEmail walks the roster tables in priority order and returns the
// first row matching the email, or sql.ErrNoRows when the address is on no
// roster.
func (r *RosterRepository) MatchByEmail(ctx context.Context, email string) (*models.RosterMatch, error) {
	for _, roster := range rosterTables {
		var row struct {
			ID       string  `db:"id"`
			UserID   *string `db:"user_id"`
			FullName string  `db:"full_name"`
		}
		query := fmt.Sprintf(`SELECT id, user_id, full_name FROM %s WHERE LOWER(email) = LOWER($1) LIMIT 1`, roster.table)
		err := r.db.GetContext(ctx, &row, query, email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("match %s roster: %w", roster.table, err)
		}
		return &models.RosterMatch{
			Role:     roster.role,
			RosterID: row.ID,
			FullName: row.FullName,
			Linked:   row.UserID != nil,
		}, nil
	}
	return nil, sql.ErrNoRows
}

// Link attaches a user id to a roster row when it has none yet. Repeating
// the call for an already-linked row is a no-op, which keeps partial login
// attempts safe to retry.
func (r *RosterRepository) Link(ctx context.Context, role models.UserRole, rosterID, userID string) error {
	table := tableForRole(role)
	if table == "" {
		return fmt.Errorf("unknown role %q", role)
	}
	query := fmt.Sprintf(`UPDATE %s SET user_id = $2, updated_at = $3 WHERE id = $1 AND user_id IS NULL`, table)
	if _, err := r.db.ExecContext(ctx, query, rosterID, userID, time.Now()); err != nil {
		return fmt.Errorf("link %s roster row: %w", table, err)
	}
	return nil
}

func tableForRole(role models.UserRole) string {
	for _, roster := range rosterTables {
		if roster.role == role {
			return roster.table
		}
	}
	return ""
}

// FindStudent loads a student roster row.
func (r *RosterRepository) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	err := r.db.GetContext(ctx, &student,
		`SELECT id, user_id, email, full_name, english_name, grade, section, academic_year_id, active, created_at, updated_at
FROM students WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ListStudents returns students per provided filter.
func (r *RosterRepository) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Grade != "" {
		where = append(where, fmt.Sprintf("grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Section != "" {
		where = append(where, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR english_name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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
	query := fmt.Sprintf(`SELECT id, user_id, email, full_name, english_name, grade, section, academic_year_id, active, created_at, updated_at
%s WHERE %s ORDER BY grade, section, full_name LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// CreateStudent inserts a student roster row.
func (r *RosterRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO students (id, user_id, email, full_name, english_name, grade, section, academic_year_id, active, created_at, updated_at)
VALUES (:id, :user_id, :email, :full_name, :english_name, :grade, :section, :academic_year_id, :active, :created_at, :updated_at)`,
		student)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// DeactivateStudent removes a student from active rosters without deleting
// ledger history.
func (r *RosterRepository) DeactivateStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindTeacher loads a teacher roster row.
func (r *RosterRepository) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	err := r.db.GetContext(ctx, &teacher,
		`SELECT id, user_id, email, full_name, active, created_at, updated_at FROM teachers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher: %w", err)
	}
	return &teacher, nil
}

// ListTeachers returns all teachers, active first.
func (r *RosterRepository) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	var teachers []models.Teacher
	err := r.db.SelectContext(ctx, &teachers,
		`SELECT id, user_id, email, full_name, active, created_at, updated_at
FROM teachers ORDER BY active DESC, full_name`)
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// CreateTeacher inserts a teacher roster row.
func (r *RosterRepository) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO teachers (id, user_id, email, full_name, active, created_at, updated_at)
VALUES (:id, :user_id, :email, :full_name, :active, :created_at, :updated_at)`,
		teacher)
	if err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// DeactivateTeacher removes a teacher from active rosters.
func (r *RosterRepository) DeactivateTeacher(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE teachers SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("deactivate teacher: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
