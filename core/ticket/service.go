package ticket

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
)

var (
	// errors
	ErrNotFound = errors.New("ticket not found")
)

const (
	maxPageURLLen   = 2000
	maxUserAgentLen = 500
)

type (
	Repository interface {
		CreateTicket(ctx context.Context, t Ticket, exec ...core.DBExecutor) (Ticket, error)
		GetTicket(ctx context.Context, id string, exec ...core.DBExecutor) (Ticket, error)
		UpdateTicket(ctx context.Context, t Ticket, exec ...core.DBExecutor) (Ticket, error)
		ListUserTickets(ctx context.Context, userID string) ([]Ticket, error)
		QueryTickets(ctx context.Context, filter AdminFilter, page core.Page) ([]Ticket, int, error)
		ListTicketsByStatus(ctx context.Context, statuses ...string) ([]Ticket, error)
		// CloseResolvedBefore closes the tickets resolved (last updated) before t and returns how many.
		CloseResolvedBefore(ctx context.Context, t time.Time, exec ...core.DBExecutor) (int64, error)
	}

	Service struct {
		repo        Repository
		guard       *access.Guard
		mailSvc     core.EmailService
		notifyEmail string
	}
)

// NewService returns a ticket service notifying notifyEmail of new tickets (when set).
func NewService(repo Repository, guard *access.Guard, mailSvc core.EmailService, notifyEmail string) *Service {
	return &Service{
		repo:        repo,
		guard:       guard,
		mailSvc:     mailSvc,
		notifyEmail: notifyEmail,
	}
}

// Create opens a ticket from a validated Form. pageURL and userAgent describe where it was filed from.
func (svc *Service) Create(ctx context.Context, p *access.Principal, form Form, pageURL, userAgent string) (Ticket, error) {
	if err := svc.guard.Check(ctx, p, nil); err != nil {
		return Ticket{}, err
	}

	now := core.Now()
	t := Ticket{
		ID:          uuid.NewString(),
		UserID:      p.UserID,
		Email:       p.Email,
		Category:    form.Category,
		Title:       form.Title,
		Description: form.Description,
		PageURL:     optional(core.Truncate(pageURL, maxPageURLLen)),
		UserAgent:   optional(core.Truncate(userAgent, maxUserAgentLen)),
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if form.Category == CategoryOther {
		t.CategoryOther = null.StringFrom(form.CategoryOther)
	}

	t, err := svc.repo.CreateTicket(ctx, t)
	if err != nil {
		return Ticket{}, errors.Wrap(err, "creating ticket")
	}

	if svc.notifyEmail != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Address: svc.notifyEmail}},
			Subject:      fmt.Sprintf("New ticket: %s", t.Title),
			TemplateName: "ticket_created",
			TemplateData: t,
		})
	}
	return t, nil
}

func (svc *Service) ListMine(ctx context.Context, p *access.Principal) ([]Ticket, error) {
	if err := svc.guard.Check(ctx, p, nil); err != nil {
		return nil, err
	}
	return svc.repo.ListUserTickets(ctx, p.UserID)
}

// GetMine returns a ticket of p. Tickets of other users are reported as not found.
func (svc *Service) GetMine(ctx context.Context, p *access.Principal, id string) (Ticket, error) {
	var t Ticket
	err := svc.guard.Check(ctx, p, func(ctx context.Context) (string, error) {
		var err error
		t, err = svc.get(ctx, id)
		return t.UserID, err
	})
	if errors.Cause(err) == access.ErrNotOwner {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, err
	}
	return t, nil
}

func (svc *Service) get(ctx context.Context, id string) (Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Ticket{}, ErrNotFound
	}
	return svc.repo.GetTicket(ctx, id)
}

// Admin

func (svc *Service) AdminList(ctx context.Context, filter AdminFilter) (tickets []Ticket, total, pages int, err error) {
	filter.Clean()
	page := core.Page{Number: filter.Page, Size: AdminPageSize}
	tickets, total, err = svc.repo.QueryTickets(ctx, filter, page)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "querying tickets")
	}
	return tickets, total, page.TotalPages(total), nil
}

func (svc *Service) AdminGet(ctx context.Context, id string) (Ticket, error) {
	return svc.get(ctx, id)
}

// AdminUpdate saves a validated AdminForm and emails the author when the note changed.
func (svc *Service) AdminUpdate(ctx context.Context, id string, form AdminForm) (Ticket, error) {
	t, err := svc.get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}

	noteChanged := form.AdminNote != t.AdminNote.String
	t.Status = form.Status
	t.AdminNote = optional(form.AdminNote)
	t.UpdatedAt = core.Now()

	if t, err = svc.repo.UpdateTicket(ctx, t); err != nil {
		return Ticket{}, errors.Wrap(err, "updating ticket")
	}

	if noteChanged && t.AdminNote.Valid && t.Email != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Address: t.Email}},
			Subject:      fmt.Sprintf("Update on your ticket: %s", t.Title),
			TemplateName: "ticket_note",
			TemplateData: t,
		})
	}
	return t, nil
}

// AutoCloseResolved closes tickets that stayed resolved for longer than age.
func (svc *Service) AutoCloseResolved(ctx context.Context, age time.Duration) (int64, error) {
	n, err := svc.repo.CloseResolvedBefore(ctx, core.Now().Add(-age))
	return n, errors.Wrap(err, "closing resolved tickets")
}

// SendOpenDigest emails the list of tickets waiting for a reply and returns how many there are.
func (svc *Service) SendOpenDigest(ctx context.Context) (int, error) {
	if svc.notifyEmail == "" {
		return 0, nil
	}
	tickets, err := svc.repo.ListTicketsByStatus(ctx, StatusOpen, StatusInProgress)
	if err != nil {
		return 0, errors.Wrap(err, "listing open tickets")
	}
	if len(tickets) == 0 {
		return 0, nil
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: svc.notifyEmail}},
		Subject:      fmt.Sprintf("%d ticket(s) waiting for a reply", len(tickets)),
		TemplateName: "ticket_digest",
		TemplateData: tickets,
	}
	export, err := exportCSV(tickets)
	if err != nil {
		return 0, errors.Wrap(err, "exporting open tickets")
	}
	if err = msg.Attach(export, DigestAttachmentName, "text/csv"); err != nil {
		return 0, errors.Wrap(err, "attaching open tickets")
	}

	svc.mailSvc.SendMessages(msg)
	return len(tickets), nil
}

// DigestAttachmentName is the CSV export attached to the open tickets digest.
const DigestAttachmentName = "open-tickets.csv"

func exportCSV(tickets []Ticket) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "status", "category", "title", "email", "page_url", "created_at"}); err != nil {
		return nil, err
	}
	for _, t := range tickets {
		row := []string{
			t.ID, t.StatusLabel(), t.CategoryLabel(), t.Title, t.Email, t.PageURL.String,
			t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return &buf, w.Error()
}

func optional(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}
