package review

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
)

// Statuses
const (
	StatusPublished = "published"
	StatusPending   = "pending"
	StatusRejected  = "rejected"
)

const (
	MaxTags        = 10
	MaxCommentLen  = 2000
	TeacherPageLen = 25
	AdminPageSize  = 30

	tagSeps = ","
)

var (
	Statuses = []string{StatusPublished, StatusPending, StatusRejected}
	Grades   = []string{"", "A+", "A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D", "F", "P", "NP"}
)

type Review struct {
	ID             string      `db:"id" json:"id"`
	TeacherID      string      `db:"teacher_id" json:"teacher_id"`
	UserID         null.String `db:"user_id" json:"-"`
	DeviceID       null.String `db:"device_id" json:"-"`
	Quality        int         `db:"quality" json:"quality"`
	Difficulty     int         `db:"difficulty" json:"difficulty"`
	WouldTakeAgain bool        `db:"would_take_again" json:"would_take_again"`
	Course         string      `db:"course" json:"course"`
	Grade          string      `db:"grade" json:"grade"`
	IsOnline       bool        `db:"is_online" json:"is_online"`
	Comment        string      `db:"comment" json:"comment"`
	Status         string      `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`

	// loaded separately
	Tags       []string   `db:"-" json:"tags"`
	Votes      VoteCounts `db:"-" json:"votes"`
	ViewerVote int        `db:"-" json:"-"`

	// joined on listings
	TeacherName    null.String `db:"teacher_name" json:"-"`
	TeacherSubject null.String `db:"teacher_subject" json:"-"`
}

func (r Review) IsPublished() bool { return r.Status == StatusPublished }

// Form is what a signed-in student submits to rate a teacher or edit their review.
type Form struct {
	Quality        int    `form:"quality" validate:"required,min=1,max=5"`
	Difficulty     int    `form:"difficulty" validate:"required,min=1,max=5"`
	WouldTakeAgain string `form:"would_take_again" validate:"required,oneof=yes no"`
	Course         string `form:"course" validate:"required,notblank,max=60"`
	Grade          string `form:"grade" validate:"grade"`
	IsOnline       string `form:"is_online"`
	TagsCSV        string `form:"tags" validate:"max=1000"`
	Comment        string `form:"comment" validate:"max=2000"`

	Tags []string `form:"-"`
}

func (f *Form) Validate(validate *validator.Validate) error {
	f.clean()
	return validate.Struct(f)
}

func (f *Form) clean() {
	f.WouldTakeAgain = core.CleanString(f.WouldTakeAgain, true /* lower */)
	f.Course = strings.ToUpper(core.CleanString(f.Course))
	f.Grade = strings.ToUpper(core.CleanString(f.Grade))
	f.Comment = core.CleanString(f.Comment)
	f.Tags = ParseTags(f.TagsCSV)
}

func (f Form) apply(r *Review) {
	r.Quality = f.Quality
	r.Difficulty = f.Difficulty
	r.WouldTakeAgain = f.WouldTakeAgain == "yes"
	r.Course = f.Course
	r.Grade = f.Grade
	r.IsOnline = checked(f.IsOnline)
	r.Comment = f.Comment
	r.Tags = f.Tags
}

// FormFrom pre-fills a Form with an existing review.
func FormFrom(r Review) Form {
	f := Form{
		Quality:        r.Quality,
		Difficulty:     r.Difficulty,
		WouldTakeAgain: "no",
		Course:         r.Course,
		Grade:          r.Grade,
		TagsCSV:        strings.Join(r.Tags, ", "),
		Comment:        r.Comment,
		Tags:           r.Tags,
	}
	if r.WouldTakeAgain {
		f.WouldTakeAgain = "yes"
	}
	if r.IsOnline {
		f.IsOnline = "on"
	}
	return f
}

// AdminForm lets moderators change any field of a review, including its status.
type AdminForm struct {
	Form
	Status string `form:"status" validate:"required,oneof=published pending rejected"`
}

func (f *AdminForm) Validate(validate *validator.Validate) error {
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.Form.clean()
	return validate.Struct(f)
}

type AdminFilter struct {
	Status    string `query:"status"`
	TeacherID string `query:"teacher_id"`
	Page      int    `query:"page"`
}

func (f *AdminFilter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.TeacherID = core.CleanString(f.TeacherID)
	if f.Page < 1 {
		f.Page = 1
	}
}

// ParseTags splits a comma separated list of tags: trimmed, upper-cased, unique, at most MaxTags.
func ParseTags(csv string) []string {
	return core.SplitList(csv, tagSeps, MaxTags, strings.ToUpper)
}

func checked(v string) bool {
	switch core.CleanString(v, true /* lower */) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
