package echoapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core/admin"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
)

const adminContextKey = "admin"

type adminApi struct {
	*server
}

func registerAdmin(s *server) {
	api := adminApi{s}

	ag := s.app.Group("/admin")
	ag.GET("/login", api.loginPage)
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)

	pg := ag.Group("", api.adminMiddleware)
	pg.GET("", func(ctx echo.Context) error { return ctx.Redirect(http.StatusSeeOther, "/admin/teachers") })

	pg.GET("/teachers", api.teachers)
	pg.POST("/teachers", api.createTeacher)
	pg.GET("/teachers/:id/edit", api.editTeacherPage)
	pg.POST("/teachers/:id", api.updateTeacher)
	pg.POST("/teachers/:id/delete", api.deleteTeacher)

	pg.GET("/reviews", api.reviews)
	pg.GET("/reviews/:id/edit", api.editReviewPage)
	pg.POST("/reviews/:id", api.updateReview)
	pg.POST("/reviews/:id/delete", api.deleteReview)
	pg.POST("/reviews/:id/approve", api.approveReview)
	pg.POST("/reviews/:id/reject", api.rejectReview)

	pg.GET("/tickets", api.tickets)
	pg.GET("/tickets/:id", api.ticket)
	pg.POST("/tickets/:id", api.updateTicket)
}

// adminMiddleware only lets requests carrying a valid admin cookie through.
func (api adminApi) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cookie, err := ctx.Cookie(admin.CookieName)
		if err == nil && cookie.Value != "" {
			sess, vErr := api.deps.AdminSigner.Verify(cookie.Value)
			if vErr == nil {
				ctx.Set(adminContextKey, sess.Username)
				return next(ctx)
			}
			api.clearAdminCookie(ctx)
		}
		return redirect(ctx, "/admin/login", "next", admin.SafeNextPath(returnPath(ctx)))
	}
}

func (api adminApi) setAdminCookie(ctx echo.Context, token string) {
	maxAge := api.deps.AdminSigner.MaxAge()
	ctx.SetCookie(&http.Cookie{
		Name:     admin.CookieName,
		Value:    token,
		Path:     admin.CookiePath,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   !api.deps.Conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

func (api adminApi) clearAdminCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     admin.CookieName,
		Value:    "",
		Path:     admin.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !api.deps.Conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

// Auth

func (api adminApi) loginPage(ctx echo.Context) error {
	return api.render(ctx, http.StatusOK, "admin/login", "Admin sign in", admin.SafeNextPath(ctx.QueryParam("next")))
}

func (api adminApi) login(ctx echo.Context) error {
	next := admin.SafeNextPath(ctx.FormValue("next"))
	username := strings.TrimSpace(ctx.FormValue("username"))

	if err := api.deps.AdminSigner.Authenticate(username, ctx.FormValue("password")); err != nil {
		return redirect(ctx, "/admin/login", "error", "Invalid admin credentials.", "next", next)
	}
	token, err := api.deps.AdminSigner.Sign(username)
	if err != nil {
		return errors.Wrap(err, "signing admin session")
	}
	api.setAdminCookie(ctx, token)

	if next == "/admin" {
		next = "/admin/teachers"
	}
	return ctx.Redirect(http.StatusSeeOther, next)
}

func (api adminApi) logout(ctx echo.Context) error {
	api.clearAdminCookie(ctx)
	return redirect(ctx, "/admin/login", "message", "Logged out.")
}

// Teachers

type adminTeachersData struct {
	Filter teacher.Filter
	Query  url.Values
	Items  []teacher.ListItem
	Total  int
	Pages  int
}

func (api adminApi) teachers(ctx echo.Context) error {
	var filter teacher.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errHttpNotFound
	}
	filter.Clean()

	items, total, pages, err := api.deps.TeacherSvc.List(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	q := make(url.Values)
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	return api.render(ctx, http.StatusOK, "admin/teachers", "Teachers", adminTeachersData{
		Filter: filter,
		Query:  q,
		Items:  items,
		Total:  total,
		Pages:  pages,
	})
}

func (api adminApi) createTeacher(ctx echo.Context) error {
	var form teacher.Form
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to teacher.Form")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, "/admin/teachers", err)
	}
	if _, err := api.deps.TeacherSvc.Create(ctx.Request().Context(), form); err != nil {
		return api.formError(ctx, "/admin/teachers", err)
	}
	return redirect(ctx, "/admin/teachers", "message", "Teacher created.")
}

func (api adminApi) editTeacherPage(ctx echo.Context) error {
	t, err := api.deps.TeacherSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return api.formError(ctx, "/admin/teachers", err)
	}
	return api.render(ctx, http.StatusOK, "admin/teacher_edit", "Edit "+t.FullName, t)
}

func (api adminApi) updateTeacher(ctx echo.Context) error {
	id := ctx.Param("id")
	back := "/admin/teachers/" + url.PathEscape(id) + "/edit"

	var form teacher.Form
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to teacher.Form")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, back, err)
	}
	if _, err := api.deps.TeacherSvc.Update(ctx.Request().Context(), id, form); err != nil {
		if isNotFound(err) {
			return api.formError(ctx, "/admin/teachers", err)
		}
		return api.formError(ctx, back, err)
	}
	return redirect(ctx, back, "message", "Saved.")
}

func (api adminApi) deleteTeacher(ctx echo.Context) error {
	if err := api.deps.TeacherSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return api.formError(ctx, "/admin/teachers", err)
	}
	return redirect(ctx, "/admin/teachers", "message", "Teacher deleted.")
}

// Reviews

type adminReviewsData struct {
	Filter   review.AdminFilter
	Query    url.Values
	Ordering string
	Reviews  []review.Review
	Statuses []string
	Total    int
	Pages    int
}

func (api adminApi) reviews(ctx echo.Context) error {
	var filter review.AdminFilter
	if err := ctx.Bind(&filter); err != nil {
		return errHttpNotFound
	}
	filter.Clean()
	var ord Ordering
	ord.Bind(ctx)

	reviews, total, pages, err := api.deps.ReviewSvc.AdminQuery(ctx.Request().Context(), filter, ord.Orderings)
	if err != nil {
		return err
	}
	q := make(url.Values)
	for k, v := range map[string]string{"status": filter.Status, "teacher_id": filter.TeacherID, orderingParam: ord.Raw} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return api.render(ctx, http.StatusOK, "admin/reviews", "Reviews", adminReviewsData{
		Filter:   filter,
		Query:    q,
		Ordering: ord.Raw,
		Reviews:  reviews,
		Statuses: review.Statuses,
		Total:    total,
		Pages:    pages,
	})
}

type adminReviewData struct {
	Review   review.Review
	Form     review.Form
	Grades   []string
	Statuses []string
}

func (api adminApi) editReviewPage(ctx echo.Context) error {
	r, err := api.deps.ReviewSvc.AdminGet(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return api.formError(ctx, "/admin/reviews", err)
	}
	return api.render(ctx, http.StatusOK, "admin/review_edit", "Edit review", adminReviewData{
		Review:   r,
		Form:     review.FormFrom(r),
		Grades:   review.Grades,
		Statuses: review.Statuses,
	})
}

func (api adminApi) updateReview(ctx echo.Context) error {
	id := ctx.Param("id")
	back := "/admin/reviews/" + url.PathEscape(id) + "/edit"

	var form review.AdminForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to review.AdminForm")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, back, err)
	}
	if _, err := api.deps.ReviewSvc.AdminUpdate(ctx.Request().Context(), id, form); err != nil {
		if isNotFound(err) {
			return api.formError(ctx, "/admin/reviews", err)
		}
		return api.formError(ctx, back, err)
	}
	return redirect(ctx, back, "message", "Saved.")
}

func (api adminApi) deleteReview(ctx echo.Context) error {
	if err := api.deps.ReviewSvc.AdminDelete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return api.formError(ctx, "/admin/reviews", err)
	}
	return redirect(ctx, "/admin/reviews", "message", "Review deleted.")
}

func (api adminApi) approveReview(ctx echo.Context) error {
	if err := api.deps.ReviewSvc.Approve(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return api.formError(ctx, "/admin/reviews", err)
	}
	return redirect(ctx, "/admin/reviews", "status", review.StatusPending, "message", "Review approved.")
}

func (api adminApi) rejectReview(ctx echo.Context) error {
	if err := api.deps.ReviewSvc.Reject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return api.formError(ctx, "/admin/reviews", err)
	}
	return redirect(ctx, "/admin/reviews", "status", review.StatusPending, "message", "Review rejected.")
}

// Tickets

type adminTicketsData struct {
	Filter   ticket.AdminFilter
	Query    url.Values
	Tickets  []ticket.Ticket
	Statuses []string
	Total    int
	Pages    int
}

func (api adminApi) tickets(ctx echo.Context) error {
	var filter ticket.AdminFilter
	if err := ctx.Bind(&filter); err != nil {
		return errHttpNotFound
	}
	filter.Clean()

	tickets, total, pages, err := api.deps.TicketSvc.AdminList(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	q := make(url.Values)
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	return api.render(ctx, http.StatusOK, "admin/tickets", "Tickets", adminTicketsData{
		Filter:   filter,
		Query:    q,
		Tickets:  tickets,
		Statuses: ticket.Statuses,
		Total:    total,
		Pages:    pages,
	})
}

type adminTicketData struct {
	Ticket   ticket.Ticket
	Statuses []string
}

func (api adminApi) ticket(ctx echo.Context) error {
	t, err := api.deps.TicketSvc.AdminGet(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return api.formError(ctx, "/admin/tickets", err)
	}
	return api.render(ctx, http.StatusOK, "admin/ticket", t.Title, adminTicketData{Ticket: t, Statuses: ticket.Statuses})
}

func (api adminApi) updateTicket(ctx echo.Context) error {
	id := ctx.Param("id")
	back := "/admin/tickets/" + url.PathEscape(id)

	var form ticket.AdminForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ticket.AdminForm")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, back, err)
	}
	if _, err := api.deps.TicketSvc.AdminUpdate(ctx.Request().Context(), id, form); err != nil {
		if isNotFound(err) {
			return api.formError(ctx, "/admin/tickets", err)
		}
		return api.formError(ctx, back, err)
	}
	return redirect(ctx, back, "message", "Updated.")
}
