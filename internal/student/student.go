// Package student manages registration, password login and profiles.
package student

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"attendtrack/internal/apperr"
	"attendtrack/internal/auth"
	"attendtrack/internal/subject"
)

const (
	DefaultSemester = 6
	DefaultCollege  = "MVJ College of Engineering"
)

var errBadLogin = apperr.Unauthenticated("Invalid username or password")

// ErrDuplicate is returned by stores when the usn or username is taken.
var ErrDuplicate = errors.New("student already exists")

// Student is a registered account.
type Student struct {
	ID                int64     `json:"id"`
	USN               string    `json:"usn"`
	Username          string    `json:"username"`
	Name              string    `json:"name"`
	Semester          int       `json:"semester"`
	College           string    `json:"college"`
	PasswordHash      string    `json:"-"`
	BiometricPrompted bool      `json:"biometric_prompted"`
	CreatedAt         time.Time `json:"created_at"`
}

// Profile is what the student sees about themself.
type Profile struct {
	USN               string `json:"usn"`
	Username          string `json:"username"`
	Name              string `json:"name"`
	Semester          int    `json:"semester"`
	College           string `json:"college"`
	HasBiometric      bool   `json:"has_biometric"`
	BiometricPrompted bool   `json:"biometric_prompted"`
}

// Registration is the sign-up form.
type Registration struct {
	USN              string `json:"usn" validate:"required"`
	Password         string `json:"password" validate:"required,min=4"`
	Name             string `json:"name" validate:"required"`
	Semester         int    `json:"semester" validate:"gte=0,lte=12"`
	College          string `json:"college"`
	OpenElective     string `json:"openElective" validate:"required"`
	OpenElectiveCode string `json:"openElectiveCode" validate:"required"`
	AECVertical      string `json:"aecVertical" validate:"required"`
	AECVerticalCode  string `json:"aecVerticalCode" validate:"required"`
}

func (r *Registration) normalize() {
	r.USN = strings.TrimSpace(r.USN)
	r.Name = strings.TrimSpace(r.Name)
	r.College = strings.TrimSpace(r.College)
	r.OpenElective = strings.TrimSpace(r.OpenElective)
	r.OpenElectiveCode = strings.TrimSpace(r.OpenElectiveCode)
	r.AECVertical = strings.TrimSpace(r.AECVertical)
	r.AECVerticalCode = strings.TrimSpace(r.AECVerticalCode)
	if r.Semester == 0 {
		r.Semester = DefaultSemester
	}
	if r.College == "" {
		r.College = DefaultCollege
	}
}

// Seeds returns the subjects created for this registration: the defaults, then
// the open elective, then the AEC vertical.
func (r Registration) Seeds() []subject.Seed {
	seeds := make([]subject.Seed, 0, len(subject.DefaultSeeds)+2)
	seeds = append(seeds, subject.DefaultSeeds...)
	return append(seeds,
		subject.Seed{Name: r.OpenElective, Code: r.OpenElectiveCode, Elective: true},
		subject.Seed{Name: r.AECVertical, Code: r.AECVerticalCode, Elective: true},
	)
}

// Mapping is a subject row joined with its owner, for the admin view.
type Mapping struct {
	SubjectID   int64  `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SubjectCode string `json:"subject_code"`
	StudentID   int64  `json:"student_id"`
	USN         string `json:"usn"`
	StudentName string `json:"student_name"`
}

// Store is the persistence contract of the student service.
type Store interface {
	// Create inserts the student and its seed subjects atomically.
	Create(ctx context.Context, s Student, seeds []subject.Seed) (Student, error)
	ByHandle(ctx context.Context, handle string) (Student, error)
	ByID(ctx context.Context, id int64) (Student, error)
	List(ctx context.Context) ([]Student, error)
	Mappings(ctx context.Context) ([]Mapping, error)
	Subjects(ctx context.Context, studentID int64) ([]subject.Subject, error)
	CredentialCount(ctx context.Context, studentID int64) (int, error)
	SetPrompted(ctx context.Context, studentID int64) error
}

// Service implements account operations.
type Service struct {
	store    Store
	validate *validator.Validate
}

// NewService creates a service backed by a store.
func NewService(store Store, validate *validator.Validate) *Service {
	if validate == nil {
		validate = validator.New()
	}
	return &Service{store: store, validate: validate}
}

// Register creates a student with the default and elective subjects.
func (s *Service) Register(ctx context.Context, reg Registration) (Student, error) {
	reg.normalize()
	if err := s.validate.Struct(reg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) == 1 && verrs[0].Field() == "Password" && verrs[0].Tag() == "min" {
			return Student{}, apperr.Invalid("Password must be at least 4 characters long")
		}
		return Student{}, apperr.FromValidator(err)
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return Student{}, fmt.Errorf("hash password: %w", err)
	}
	st, err := s.store.Create(ctx, Student{
		USN:          reg.USN,
		Username:     reg.USN,
		Name:         reg.Name,
		Semester:     reg.Semester,
		College:      reg.College,
		PasswordHash: hash,
	}, reg.Seeds())
	if errors.Is(err, ErrDuplicate) {
		return Student{}, apperr.Invalid("USN already registered. Please login instead.")
	}
	if err != nil {
		return Student{}, fmt.Errorf("create student: %w", err)
	}
	return st, nil
}

// Login checks a usn-or-username and password pair.
func (s *Service) Login(ctx context.Context, handle, password string) (Student, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || password == "" {
		return Student{}, apperr.Invalid("Username and password are required")
	}
	st, err := s.store.ByHandle(ctx, handle)
	if errors.Is(err, apperr.ErrNotFound) {
		return Student{}, errBadLogin
	}
	if err != nil {
		return Student{}, fmt.Errorf("load student: %w", err)
	}
	ok, err := auth.CheckPassword(st.PasswordHash, password)
	if err != nil || !ok {
		return Student{}, errBadLogin
	}
	return st, nil
}

// ByHandle resolves a usn or username.
func (s *Service) ByHandle(ctx context.Context, handle string) (Student, error) {
	return s.store.ByHandle(ctx, strings.TrimSpace(handle))
}

// Me returns the profile of the session's student.
func (s *Service) Me(ctx context.Context, studentID int64) (Profile, error) {
	st, err := s.store.ByID(ctx, studentID)
	if err != nil {
		return Profile{}, err
	}
	n, err := s.store.CredentialCount(ctx, studentID)
	if err != nil {
		return Profile{}, fmt.Errorf("credential count: %w", err)
	}
	return Profile{
		USN:               st.USN,
		Username:          st.Username,
		Name:              st.Name,
		Semester:          st.Semester,
		College:           st.College,
		HasBiometric:      n > 0,
		BiometricPrompted: st.BiometricPrompted,
	}, nil
}

// Subjects lists the student's subjects in creation order.
func (s *Service) Subjects(ctx context.Context, studentID int64) ([]subject.Subject, error) {
	return s.store.Subjects(ctx, studentID)
}

// List returns every student for the admin view.
func (s *Service) List(ctx context.Context) ([]Student, error) {
	return s.store.List(ctx)
}

// Mappings returns every subject with its owner for the admin view.
func (s *Service) Mappings(ctx context.Context) ([]Mapping, error) {
	return s.store.Mappings(ctx)
}
