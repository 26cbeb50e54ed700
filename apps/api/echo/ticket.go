package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core/ticket"
)

type ticketApi struct {
	*server
}

func registerTickets(s *server) {
	api := ticketApi{s}

	s.app.GET("/contact", api.contactPage, requireUser)
	s.app.POST("/contact", api.create, requireUser)

	mg := s.app.Group("/me/tickets", requireUser)
	mg.GET("", api.mine)
	mg.GET("/:id", api.detail)
}

type contactData struct {
	Categories []string
	Other      string
	Success    bool
	TicketID   string
}

func (api ticketApi) contactPage(ctx echo.Context) error {
	return api.render(ctx, http.StatusOK, "contact", "Contact us", contactData{
		Categories: ticket.Categories,
		Other:      ticket.CategoryOther,
		Success:    ctx.QueryParam("success") == "1",
		TicketID:   ctx.QueryParam("ticket"),
	})
}

func (api ticketApi) create(ctx echo.Context) error {
	var form ticket.Form
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ticket.Form")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, "/contact", err)
	}

	req := ctx.Request()
	t, err := api.deps.TicketSvc.Create(req.Context(), principal(ctx), form, req.Referer(), req.UserAgent())
	if err != nil {
		return api.formError(ctx, "/contact", err)
	}
	api.metrics.event(eventTicketCreated)
	return redirect(ctx, "/contact", "success", "1", "ticket", t.ID)
}

func (api ticketApi) mine(ctx echo.Context) error {
	tickets, err := api.deps.TicketSvc.ListMine(ctx.Request().Context(), principal(ctx))
	if err != nil {
		return err
	}
	return api.render(ctx, http.StatusOK, "my_tickets", "My tickets", tickets)
}

func (api ticketApi) detail(ctx echo.Context) error {
	t, err := api.deps.TicketSvc.GetMine(ctx.Request().Context(), principal(ctx), ctx.Param("id"))
	if err != nil {
		if isNotFound(err) {
			return errHttpNotFound
		}
		return err
	}
	return api.render(ctx, http.StatusOK, "ticket", t.Title, t)
}
