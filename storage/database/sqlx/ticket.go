package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
)

type ticketRepository struct {
	db core.DB
}

var _ ticket.Repository = (*ticketRepository)(nil)

func NewTicketRepository(db core.DB) *ticketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, user_id, email, category, category_other, title, description, page_url, user_agent,
       status, admin_note, created_at, updated_at`

func (repo *ticketRepository) CreateTicket(ctx context.Context, t ticket.Ticket, exec ...core.DBExecutor) (ticket.Ticket, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`
INSERT INTO support_tickets (` + ticketColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := ex.ExecContext(ctx, q,
		t.ID, t.UserID, t.Email, t.Category, t.CategoryOther, t.Title, t.Description, t.PageURL, t.UserAgent,
		t.Status, t.AdminNote, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return ticket.Ticket{}, errors.Wrap(err, "inserting ticket")
	}
	return t, nil
}

func (repo *ticketRepository) GetTicket(ctx context.Context, id string, exec ...core.DBExecutor) (ticket.Ticket, error) {
	ex := getExec(repo.db, exec)
	var t ticket.Ticket
	q := ex.Rebind(`SELECT ` + ticketColumns + ` FROM support_tickets WHERE id = ?`)
	if err := ex.GetContext(ctx, &t, q, id); err != nil {
		return ticket.Ticket{}, trapNoRowsErr(err, ticket.ErrNotFound)
	}
	return t, nil
}

func (repo *ticketRepository) UpdateTicket(ctx context.Context, t ticket.Ticket, exec ...core.DBExecutor) (ticket.Ticket, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`UPDATE support_tickets SET status = ?, admin_note = ?, updated_at = ? WHERE id = ?`)
	res, err := ex.ExecContext(ctx, q, t.Status, t.AdminNote, t.UpdatedAt, t.ID)
	if err != nil {
		return ticket.Ticket{}, errors.Wrap(err, "updating ticket")
	}
	if err = checkAffected(res, ticket.ErrNotFound); err != nil {
		return ticket.Ticket{}, err
	}
	return t, nil
}

func (repo *ticketRepository) selectTickets(ctx context.Context, q string, args ...interface{}) ([]ticket.Ticket, error) {
	tickets := make([]ticket.Ticket, 0)
	if err := repo.db.SelectContext(ctx, &tickets, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting tickets")
	}
	return tickets, nil
}

func (repo *ticketRepository) ListUserTickets(ctx context.Context, userID string) ([]ticket.Ticket, error) {
	return repo.selectTickets(ctx, `
SELECT `+ticketColumns+` FROM support_tickets
WHERE user_id = ?
ORDER BY created_at DESC, id`, userID)
}

func (repo *ticketRepository) QueryTickets(ctx context.Context, filter ticket.AdminFilter, page core.Page) ([]ticket.Ticket, int, error) {
	var where string
	args := make([]interface{}, 0, 3)
	if filter.Status != "" {
		where = "\nWHERE status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*) FROM support_tickets`+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting tickets")
	}

	q := `
SELECT ` + ticketColumns + ` FROM support_tickets` + where + `
ORDER BY created_at DESC, id`
	if page.Size > 0 {
		q += `
LIMIT ? OFFSET ?`
		args = append(args, page.Size, page.Offset())
	}
	tickets, err := repo.selectTickets(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (repo *ticketRepository) ListTicketsByStatus(ctx context.Context, statuses ...string) ([]ticket.Ticket, error) {
	if len(statuses) == 0 {
		return []ticket.Ticket{}, nil
	}
	q, args, err := sqlx.In(`
SELECT `+ticketColumns+` FROM support_tickets
WHERE status IN (?)
ORDER BY created_at ASC, id`, statuses)
	if err != nil {
		return nil, errors.Wrap(err, "building tickets query")
	}
	return repo.selectTickets(ctx, q, args...)
}

func (repo *ticketRepository) CloseResolvedBefore(ctx context.Context, t time.Time, exec ...core.DBExecutor) (int64, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`UPDATE support_tickets SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`)
	res, err := ex.ExecContext(ctx, q, ticket.StatusClosed, core.Now(), ticket.StatusResolved, t)
	if err != nil {
		return 0, errors.Wrap(err, "closing resolved tickets")
	}
	return res.RowsAffected()
}
