package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stpaulclark/merit-api/internal/models"
	appErrors "github.com/stpaulclark/merit-api/pkg/errors"
)

type mockRosterStore struct {
	students           map[string]*models.Student
	teachers           []models.Teacher
	createdStudents    []*models.Student
	createdTeachers    []*models.Teacher
	deactivatedStudent string
	deactivatedTeacher string
	listFilter         models.StudentFilter
}

func (m *mockRosterStore) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterStore) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.listFilter = filter
	var list []models.Student
	for _, s := range m.students {
		list = append(list, *s)
	}
	return list, len(list), nil
}

func (m *mockRosterStore) CreateStudent(ctx context.Context, student *models.Student) error {
	student.ID = "stu-new"
	m.createdStudents = append(m.createdStudents, student)
	return nil
}

func (m *mockRosterStore) DeactivateStudent(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	m.deactivatedStudent = id
	return nil
}

func (m *mockRosterStore) FindTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	for _, teacher := range m.teachers {
		if teacher.ID == id {
			cp := teacher
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRosterStore) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	return m.teachers, nil
}

func (m *mockRosterStore) CreateTeacher(ctx context.Context, teacher *models.Teacher) error {
	teacher.ID = "teach-new"
	m.createdTeachers = append(m.createdTeachers, teacher)
	return nil
}

func (m *mockRosterStore) DeactivateTeacher(ctx context.Context, id string) error {
	m.deactivatedTeacher = id
	return nil
}

type mockAcademicYearStore struct {
	year  *models.AcademicYear
	years []models.AcademicYear
}

func (m *mockAcademicYearStore) Active(ctx context.Context) (*models.AcademicYear, error) {
	if m.year == nil {
		return nil, sql.ErrNoRows
	}
	return m.year, nil
}

func (m *mockAcademicYearStore) List(ctx context.Context) ([]models.AcademicYear, error) {
	return m.years, nil
}

func TestRosterCreateStudentNormalizesEmail(t *testing.T) {
	roster := &mockRosterStore{}
	years := &mockAcademicYearStore{year: &models.AcademicYear{ID: "year-1"}}
	svc := NewRosterService(roster, years, nil, nil)

	student, err := svc.CreateStudent(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, CreateStudentRequest{
		Email:    "  Jun.Park@stpaulclark.com ",
		FullName: "Park Jun",
		Grade:    "10",
		Section:  "A",
	})
	require.NoError(t, err)
	assert.Equal(t, "jun.park@stpaulclark.com", student.Email)
	assert.True(t, student.Active)
	require.NotNil(t, student.AcademicYearID)
	assert.Equal(t, "year-1", *student.AcademicYearID)
	require.Len(t, roster.createdStudents, 1)
}

func TestRosterCreateStudentForbiddenForTeachers(t *testing.T) {
	svc := NewRosterService(&mockRosterStore{}, &mockAcademicYearStore{}, nil, nil)

	_, err := svc.CreateStudent(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, CreateStudentRequest{
		Email: "a@stpaulclark.com", FullName: "A", Grade: "10", Section: "A",
	})
	require.Error(t, err)
}

func TestRosterCreateStudentValidatesPayload(t *testing.T) {
	svc := NewRosterService(&mockRosterStore{}, &mockAcademicYearStore{}, nil, nil)

	_, err := svc.CreateStudent(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, CreateStudentRequest{
		Email: "not-an-email", FullName: "A", Grade: "10", Section: "A",
	})
	require.Error(t, err)
}

func TestRosterListStudentsStaffOnly(t *testing.T) {
	roster := &mockRosterStore{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", FullName: "Park Jun"},
	}}
	svc := NewRosterService(roster, &mockAcademicYearStore{}, nil, nil)

	students, pagination, err := svc.ListStudents(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher}, models.StudentFilter{Grade: "10"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, "10", roster.listFilter.Grade)

	_, _, err = svc.ListStudents(context.Background(), Actor{UserID: "stu-1", Role: models.RoleStudent}, models.StudentFilter{})
	require.Error(t, err)
}

func TestRosterDeactivateStudent(t *testing.T) {
	roster := &mockRosterStore{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", Active: true},
	}}
	svc := NewRosterService(roster, &mockAcademicYearStore{}, nil, nil)

	require.NoError(t, svc.DeactivateStudent(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, "stu-1"))
	assert.Equal(t, "stu-1", roster.deactivatedStudent)
}

func TestRosterDeactivateStudentNotFound(t *testing.T) {
	svc := NewRosterService(&mockRosterStore{}, &mockAcademicYearStore{}, nil, nil)

	err := svc.DeactivateStudent(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, "ghost")
	require.Error(t, err)

	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, apiErr.Code)
}

func TestRosterCreateTeacherAdminOnly(t *testing.T) {
	roster := &mockRosterStore{}
	svc := NewRosterService(roster, &mockAcademicYearStore{}, nil, nil)

	teacher, err := svc.CreateTeacher(context.Background(), Actor{UserID: "admin-1", Role: models.RoleAdmin}, CreateTeacherRequest{
		Email: " Kim.Min@stpaulclark.com ", FullName: "Kim Min",
	})
	require.NoError(t, err)
	assert.Equal(t, "kim.min@stpaulclark.com", teacher.Email)
	require.Len(t, roster.createdTeachers, 1)

	_, err = svc.CreateTeacher(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal}, CreateTeacherRequest{
		Email: "a@stpaulclark.com", FullName: "A",
	})
	require.Error(t, err)
}

func TestRosterListTeachersLeadershipOnly(t *testing.T) {
	roster := &mockRosterStore{teachers: []models.Teacher{{ID: "teach-1"}}}
	svc := NewRosterService(roster, &mockAcademicYearStore{}, nil, nil)

	teachers, err := svc.ListTeachers(context.Background(), Actor{UserID: "prin-1", Role: models.RolePrincipal})
	require.NoError(t, err)
	assert.Len(t, teachers, 1)

	_, err = svc.ListTeachers(context.Background(), Actor{UserID: "teach-1", Role: models.RoleTeacher})
	require.Error(t, err)
}

func TestRosterListAcademicYears(t *testing.T) {
	years := &mockAcademicYearStore{years: []models.AcademicYear{{ID: "year-1"}, {ID: "year-0"}}}
	svc := NewRosterService(&mockRosterStore{}, years, nil, nil)

	list, err := svc.ListAcademicYears(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
