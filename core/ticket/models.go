package ticket

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
)

// Statuses
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

const (
	CategoryOther = "Other"

	AdminPageSize = 30
)

var (
	Categories = []string{
		"Troubleshooting",
		"Business Partnership",
		"Technical Partnership",
		"Account & Login",
		"Content Report",
		"Bug Report",
		"Feature Request",
		"Data Correction",
		CategoryOther,
	}

	Statuses = []string{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

	statusLabels = map[string]string{
		StatusOpen:       "Open",
		StatusInProgress: "In progress",
		StatusResolved:   "Resolved",
		StatusClosed:     "Closed",
	}
)

func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

type Ticket struct {
	ID            string      `db:"id"`
	UserID        string      `db:"user_id"`
	Email         string      `db:"email"`
	Category      string      `db:"category"`
	CategoryOther null.String `db:"category_other"`
	Title         string      `db:"title"`
	Description   string      `db:"description"`
	PageURL       null.String `db:"page_url"`
	UserAgent     null.String `db:"user_agent"`
	Status        string      `db:"status"`
	AdminNote     null.String `db:"admin_note"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

// CategoryLabel shows "Other: <detail>" for free-form categories.
func (t Ticket) CategoryLabel() string {
	if t.Category == CategoryOther && t.CategoryOther.String != "" {
		return CategoryOther + ": " + t.CategoryOther.String
	}
	return t.Category
}

func (t Ticket) StatusLabel() string { return StatusLabel(t.Status) }

// ShortID abbreviates the id for display, e.g. 1b9d6bcd…4e2a.
func (t Ticket) ShortID() string {
	if len(t.ID) > 10 {
		return t.ID[:8] + "…" + t.ID[len(t.ID)-4:]
	}
	return t.ID
}

// Form is a support request from a signed-in user.
type Form struct {
	Category      string `form:"category" validate:"required,ticketcategory"`
	CategoryOther string `form:"category_other" validate:"required_if=Category Other,max=60"`
	Title         string `form:"title" validate:"required,min=3,max=120"`
	Description   string `form:"description" validate:"required,min=10,max=4000"`
}

func (f *Form) Validate(validate *validator.Validate) error {
	f.Category = core.CleanString(f.Category)
	f.CategoryOther = core.CleanString(f.CategoryOther)
	f.Title = core.CleanString(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	if f.Category != CategoryOther {
		f.CategoryOther = ""
	}
	return validate.Struct(f)
}

// AdminForm changes the status of a ticket and the note shown to its author.
type AdminForm struct {
	Status    string `form:"status" validate:"required,ticketstatus"`
	AdminNote string `form:"admin_note" validate:"max=4000"`
}

func (f *AdminForm) Validate(validate *validator.Validate) error {
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.AdminNote = strings.TrimSpace(f.AdminNote)
	return validate.Struct(f)
}

type AdminFilter struct {
	Status string `query:"status"`
	Page   int    `query:"page"`
}

func (f *AdminFilter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
	if f.Page < 1 {
		f.Page = 1
	}
}
