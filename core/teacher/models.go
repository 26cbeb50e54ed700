package teacher

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
)

const (
	PageSize    = 10
	MaxSubjects = 20
	TopTagLimit = 10

	subjectSeps       = ","
	subjectOptionSeps = ",;|/"
)

type Teacher struct {
	ID        string      `db:"id" json:"id"`
	FullName  string      `db:"full_name" json:"full_name"`
	Subject   null.String `db:"subject" json:"subject"` // primary subject
	Subjects  []string    `db:"-" json:"subjects"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// SubjectOptions lists the subjects suggested when rating this teacher.
func (t Teacher) SubjectOptions() []string {
	if len(t.Subjects) > 0 {
		return t.Subjects
	}
	return core.SplitList(t.Subject.String, subjectOptionSeps, MaxSubjects)
}

// ListItem is a teacher with the aggregates of its published reviews.
type ListItem struct {
	ID                string       `db:"id" json:"id"`
	FullName          string       `db:"full_name" json:"full_name"`
	Subject           null.String  `db:"subject" json:"subject"`
	AvgQuality        null.Float64 `db:"avg_quality" json:"avg_quality"`
	AvgDifficulty     null.Float64 `db:"avg_difficulty" json:"avg_difficulty"`
	ReviewCount       int          `db:"review_count" json:"review_count"`
	PctWouldTakeAgain null.Float64 `db:"pct_would_take_again" json:"pct_would_take_again"`
}

// Distribution counts published reviews per quality score (index 0 is a score of 1).
type Distribution [5]int

func (d Distribution) Total() int {
	var total int
	for _, n := range d {
		total += n
	}
	return total
}

// Percent returns the share of reviews with the given quality score, in [0, 100].
func (d Distribution) Percent(quality int) float64 {
	total := d.Total()
	if total == 0 || quality < 1 || quality > 5 {
		return 0
	}
	return 100 * float64(d[quality-1]) / float64(total)
}

type TagCount struct {
	Tag   string `db:"tag" json:"tag"`
	Count int    `db:"count" json:"count"`
}

// Detail is everything shown on a teacher's page besides the reviews.
type Detail struct {
	ListItem
	Teacher      Teacher      `json:"-"`
	Subjects     []string     `json:"subjects"`
	Distribution Distribution `json:"distribution"`
	TopTags      []TagCount   `json:"top_tags"`
	Courses      []string     `json:"courses"`
}

type Filter struct {
	Query   string `query:"q" json:"q"`
	Subject string `query:"subject" json:"subject"`
	Page    int    `query:"page" json:"page"`
}

func (f *Filter) Clean() {
	f.Query = core.CleanString(f.Query)
	f.Subject = core.CleanString(f.Subject)
	if f.Page < 1 {
		f.Page = 1
	}
}

// Form is used by admins to create or edit a teacher.
type Form struct {
	FullName    string   `form:"full_name" validate:"required,notblank,max=120"`
	SubjectsCSV string   `form:"subjects" validate:"max=2000"`
	Subjects    []string `form:"-"`
}

func (f *Form) Validate(validate *validator.Validate) error {
	f.FullName = strings.Join(strings.Fields(f.FullName), " ")
	f.Subjects = ParseSubjects(f.SubjectsCSV)
	return validate.Struct(f)
}

// ParseSubjects splits a comma separated list of subjects: trimmed, unique, at most MaxSubjects.
func ParseSubjects(csv string) []string {
	return core.SplitList(csv, subjectSeps, MaxSubjects)
}

// ImportRecord is one teacher of an import file.
type ImportRecord struct {
	Name     string   `yaml:"name"`
	Subjects []string `yaml:"subjects"`
}
