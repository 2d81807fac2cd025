package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stpaulclark/merit-api/internal/models"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type rosterStore interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	DeactivateStudent(ctx context.Context, id string) error
	FindTeacher(ctx context.Context, id string) (*models.Teacher, error)
	ListTeachers(ctx context.Context) ([]models.Teacher, error)
	CreateTeacher(ctx context.Context, teacher *models.Teacher) error
	DeactivateTeacher(ctx context.Context, id string) error
}

type academicYearStore interface {
	Active(ctx context.Context) (*models.AcademicYear, error)
	List(ctx context.Context) ([]models.AcademicYear, error)
}

// RosterService manages the student and teacher rosters the role resolver
// matches against. Roster rows are deactivated, never deleted, so ledger
// history stays intact.
type RosterService struct {
	roster    rosterStore
	years     academicYearStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs the service.
func NewRosterService(roster rosterStore, years academicYearStore, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{roster: roster, years: years, validator: validate, logger: logger}
}

// ListAcademicYears returns all configured school years, newest first.
func (s *RosterService) ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error) {
	years, err := s.years.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, nil
}

// CreateStudentRequest describes a new student roster row.
type CreateStudentRequest struct {
	Email       string `json:"email" validate:"required,email"`
	FullName    string `json:"full_name" validate:"required"`
	EnglishName string `json:"english_name"`
	Grade       string `json:"grade" validate:"required"`
	Section     string `json:"section" validate:"required"`
}

// CreateTeacherRequest describes a new teacher roster row.
type CreateTeacherRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
}

// GetStudent loads one student.
func (s *RosterService) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.roster.FindStudent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// ListStudents returns students per provided filter.
func (s *RosterService) ListStudents(ctx context.Context, actor Actor, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if !actor.Role.CanIssue() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only staff can browse the roster")
	}
	students, total, err := s.roster.ListStudents(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CreateStudent adds a student roster row.
func (s *RosterService) CreateStudent(ctx context.Context, actor Actor, req CreateStudentRequest) (*models.Student, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can manage rosters")
	}
	// Normalize before validating so " Jun.Park@..." passes the email tag.
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	student := &models.Student{
		Email:       req.Email,
		FullName:    req.FullName,
		EnglishName: req.EnglishName,
		Grade:       req.Grade,
		Section:     req.Section,
		Active:      true,
	}
	if year, err := s.years.Active(ctx); err == nil {
		student.AcademicYearID = &year.ID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve academic year")
	}

	if err := s.roster.CreateStudent(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student added to roster", zap.String("student_id", student.ID), zap.String("grade", student.Grade))
	return student, nil
}

// DeactivateStudent removes a student from the active roster.
func (s *RosterService) DeactivateStudent(ctx context.Context, actor Actor, id string) error {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can manage rosters")
	}
	if err := s.roster.DeactivateStudent(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}

// ListTeachers returns the teacher roster.
func (s *RosterService) ListTeachers(ctx context.Context, actor Actor) ([]models.Teacher, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RolePrincipal {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only principals and admins can browse the teacher roster")
	}
	teachers, err := s.roster.ListTeachers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// CreateTeacher adds a teacher roster row.
func (s *RosterService) CreateTeacher(ctx context.Context, actor Actor, req CreateTeacherRequest) (*models.Teacher, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can manage the teacher roster")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	teacher := &models.Teacher{
		Email:    req.Email,
		FullName: req.FullName,
		Active:   true,
	}
	if err := s.roster.CreateTeacher(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.logger.Info("teacher added to roster", zap.String("teacher_id", teacher.ID))
	return teacher, nil
}

// DeactivateTeacher removes a teacher from the active roster.
func (s *RosterService) DeactivateTeacher(ctx context.Context, actor Actor, id string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can manage the teacher roster")
	}
	if err := s.roster.DeactivateTeacher(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}
	s.logger.Info("teacher deactivated", zap.String("teacher_id", id))
	return nil
}
