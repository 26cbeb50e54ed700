package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
)

type reviewApi struct {
	*server
}

func registerReviews(s *server) {
	api := reviewApi{s}

	s.app.GET("/teachers/:id/rate", api.ratePage, requireUser)
	s.app.POST("/teachers/:id/rate", api.rate, requireUser)
	s.app.POST("/reviews/:id/vote", api.vote, requireUser)

	mg := s.app.Group("/me/ratings", requireUser)
	mg.GET("", api.mine)
	mg.GET("/:id/edit", api.editPage)
	mg.POST("/:id/edit", api.edit)
	mg.POST("/:id/delete", api.delete)
}

type rateData struct {
	Teacher  teacher.Teacher
	Subjects []string
	Form     review.Form
	Grades   []string
	Action   string
	ReviewID string
}

func (api reviewApi) ratePage(ctx echo.Context) error {
	t, err := api.deps.TeacherSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if isNotFound(err) {
			return errHttpNotFound
		}
		return err
	}
	return api.render(ctx, http.StatusOK, "rate", "Rate "+t.FullName, rateData{
		Teacher:  t,
		Subjects: t.SubjectOptions(),
		Form:     review.Form{WouldTakeAgain: "yes"},
		Grades:   review.Grades,
		Action:   "/teachers/" + t.ID + "/rate",
	})
}

func (api reviewApi) rate(ctx echo.Context) error {
	teacherID := ctx.Param("id")
	back := "/teachers/" + teacherID + "/rate"

	var form review.Form
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to review.Form")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, back, err)
	}

	r, err := api.deps.ReviewSvc.Create(ctx.Request().Context(), principal(ctx), teacherID, form)
	if err != nil {
		if errors.Cause(err) == teacher.ErrNotFound {
			return api.formError(ctx, "/teachers", err)
		}
		return api.formError(ctx, back, err)
	}
	api.metrics.event(eventReviewCreated)
	return redirect(ctx, "/teachers/"+r.TeacherID, "message", "Thanks! Your rating was posted.")
}

func (api reviewApi) vote(ctx echo.Context) error {
	back := core.SafeRedirectPath(ctx.FormValue("next"), "/teachers")

	res, err := api.deps.ReviewSvc.SetVote(ctx.Request().Context(), principal(ctx), ctx.Param("id"), ctx.FormValue("op"))
	if err != nil {
		if wantsJSON(ctx) {
			return echo.NewHTTPError(http.StatusBadRequest, sentence(errors.Cause(err).Error()))
		}
		return api.formError(ctx, back, err)
	}
	api.metrics.event(eventVote)
	if wantsJSON(ctx) {
		return ctx.JSON(http.StatusOK, echo.Map{
			"created":     res.Created,
			"updated":     res.Updated,
			"toggled_off": res.ToggledOff,
			"value":       res.Value,
		})
	}
	return ctx.Redirect(http.StatusSeeOther, back)
}

func wantsJSON(ctx echo.Context) bool {
	return ctx.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON
}

func (api reviewApi) mine(ctx echo.Context) error {
	reviews, err := api.deps.ReviewSvc.ListMine(ctx.Request().Context(), principal(ctx))
	if err != nil {
		return err
	}
	return api.render(ctx, http.StatusOK, "my_ratings", "My ratings", reviews)
}

func (api reviewApi) editPage(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	r, err := api.deps.ReviewSvc.GetMine(reqCtx, principal(ctx), ctx.Param("id"))
	if err != nil {
		return api.formError(ctx, "/me/ratings", err)
	}
	t, err := api.deps.TeacherSvc.Get(reqCtx, r.TeacherID)
	if err != nil {
		return err
	}
	return api.render(ctx, http.StatusOK, "rate", "Edit rating", rateData{
		Teacher:  t,
		Subjects: t.SubjectOptions(),
		Form:     review.FormFrom(r),
		Grades:   review.Grades,
		Action:   "/me/ratings/" + r.ID + "/edit",
		ReviewID: r.ID,
	})
}

func (api reviewApi) edit(ctx echo.Context) error {
	id := ctx.Param("id")

	var form review.Form
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to review.Form")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return api.formError(ctx, "/me/ratings/"+id+"/edit", err)
	}

	if _, err := api.deps.ReviewSvc.Update(ctx.Request().Context(), principal(ctx), id, form); err != nil {
		return api.formError(ctx, "/me/ratings", err)
	}
	api.metrics.event(eventReviewEdited)
	return redirect(ctx, "/me/ratings", "message", "Rating updated.")
}

func (api reviewApi) delete(ctx echo.Context) error {
	if _, err := api.deps.ReviewSvc.Delete(ctx.Request().Context(), principal(ctx), ctx.Param("id")); err != nil {
		return api.formError(ctx, "/me/ratings", err)
	}
	api.metrics.event(eventReviewDeleted)
	return redirect(ctx, "/me/ratings", "message", "Rating deleted.")
}
