// Package testutil provides a migrated database per test and fixture builders.
package testutil

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
	"github.com/rmtbiph/ratemyteacher/core/user"
	logsvc "github.com/rmtbiph/ratemyteacher/services/logger"
	"github.com/rmtbiph/ratemyteacher/storage/database"
)

const (
	Domain   = "@basischina.com"
	Password = "Correct-horse-42"
)

// NewConfig returns a TEST configuration using a fresh SQLite file under t.TempDir().
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		AppName:            "Rate My Teacher BIPH",
		Env:                "TEST",
		Debug:              true,
		TestMode:           true,
		SecretKey:          "test-secret-key",
		SiteURL:            "http://localhost:8000",
		AllowedEmailDomain: Domain,
		Server: core.ServerConfig{
			SessionExpirationDelta: time.Hour,
		},
		Database: core.DatabaseConfig{
			Engine: database.EngineSQLite,
			Path:   filepath.Join(t.TempDir(), "test.db"),
		},
		Admin: core.AdminConfig{
			Username:      "admin",
			Password:      "admin-pass",
			CookieSecret:  "test-cookie-secret",
			SessionMaxAge: time.Hour,
			NotifyEmail:   "admin" + Domain,
		},
	}
}

// PrepareDB opens and migrates the database of conf; it is closed when the test ends.
func PrepareDB(t *testing.T, conf *core.Config) *sqlx.DB {
	t.Helper()
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			log.Printf("db.Close(): %v", err)
		}
	})
	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB() migrate failed: %v", err)
	}
	return db
}

// NewValidation returns a validator with every custom tag registered, and the translator of its messages.
func NewValidation() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	review.InitValidators(validate, translator)
	ticket.InitValidators(validate, translator)
	return validate, translator
}

func NewValidator() *validator.Validate {
	validate, _ := NewValidation()
	return validate
}

// NewLogger returns a disabled Rollbar logger writing to the test output.
func NewLogger(t *testing.T, conf *core.Config) core.Logger {
	logger := logsvc.New(log.New(testWriter{t}, "TEST : ", log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(false)
	return logger
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Email returns a school email for the given local part.
func Email(local string) string {
	return strings.ToLower(local) + Domain
}

func CreateUser(t *testing.T, repo user.Repository, email string, pwd ...string) user.User {
	t.Helper()
	now := core.Now()
	usr := user.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	password := Password
	if len(pwd) > 0 {
		password = pwd[0]
	}
	if err := usr.SetPassword(password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

type TeacherRepository interface {
	CreateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error)
	SetTeacherSubjects(ctx context.Context, teacherID string, subjects []string, exec ...core.DBExecutor) error
}

func CreateTeacher(t *testing.T, repo TeacherRepository, fullName string, subjects ...string) teacher.Teacher {
	t.Helper()
	now := core.Now()
	tch := teacher.Teacher{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Subjects:  subjects,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(subjects) > 0 {
		tch.Subject = null.StringFrom(subjects[0])
	}
	ctx := context.Background()
	tch, err := repo.CreateTeacher(ctx, tch)
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	if err = repo.SetTeacherSubjects(ctx, tch.ID, subjects); err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	tch.Subjects = subjects
	return tch
}

// ReviewOpts overrides the defaults of CreateReview.
type ReviewOpts struct {
	Quality        int
	Difficulty     int
	WouldTakeAgain bool
	Course         string
	Tags           []string
	Status         string
	DeviceID       string
	CreatedAt      time.Time
}

// CreateReview saves a review of tch by usr (nil for a device review).
func CreateReview(t *testing.T, repo review.Repository, tch teacher.Teacher, usr *user.User, opts ReviewOpts) review.Review {
	t.Helper()
	now := core.Now()
	if !opts.CreatedAt.IsZero() {
		now = opts.CreatedAt.UTC().Truncate(time.Microsecond)
	}
	r := review.Review{
		ID:             uuid.NewString(),
		TeacherID:      tch.ID,
		Quality:        opts.Quality,
		Difficulty:     opts.Difficulty,
		WouldTakeAgain: opts.WouldTakeAgain,
		Course:         opts.Course,
		Tags:           opts.Tags,
		Status:         opts.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if r.Quality == 0 {
		r.Quality = 4
	}
	if r.Difficulty == 0 {
		r.Difficulty = 3
	}
	if r.Course == "" {
		r.Course = "AP PHYSICS"
	}
	if r.Status == "" {
		r.Status = review.StatusPublished
	}
	if usr != nil {
		r.UserID = null.StringFrom(usr.ID)
	}
	if opts.DeviceID != "" {
		r.DeviceID = null.StringFrom(opts.DeviceID)
	}

	ctx := context.Background()
	r, err := repo.CreateReview(ctx, r)
	if err != nil {
		t.Fatalf("CreateReview() failed: %v", err)
	}
	if err = repo.SetReviewTags(ctx, r.ID, opts.Tags); err != nil {
		t.Fatalf("CreateReview() failed: %v", err)
	}
	r.Tags = opts.Tags
	return r
}

func CreateTicket(t *testing.T, repo ticket.Repository, usr user.User, title, status string) ticket.Ticket {
	t.Helper()
	now := core.Now()
	if status == "" {
		status = ticket.StatusOpen
	}
	tk, err := repo.CreateTicket(context.Background(), ticket.Ticket{
		ID:          uuid.NewString(),
		UserID:      usr.ID,
		Email:       usr.Email,
		Category:    "Bug Report",
		Title:       title,
		Description: "Something does not work as expected.",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateTicket() failed: %v", err)
	}
	return tk
}
