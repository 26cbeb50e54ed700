package echoapi

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
)

type teacherApi struct {
	*server
}

func registerTeachers(s *server) {
	api := teacherApi{s}

	s.app.GET("/teachers", api.list)
	s.app.GET("/teachers/:id", api.detail)
}

type teachersData struct {
	Filter   teacher.Filter
	Query    url.Values // without page
	Items    []teacher.ListItem
	Subjects []string
	Total    int
	Pages    int
}

func (api teacherApi) list(ctx echo.Context) error {
	var filter teacher.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errHttpNotFound
	}
	filter.Clean()

	reqCtx := ctx.Request().Context()
	items, total, pages, err := api.deps.TeacherSvc.List(reqCtx, filter)
	if err != nil {
		return err
	}
	subjects, err := api.deps.TeacherSvc.Subjects(reqCtx)
	if err != nil {
		return err
	}

	q := make(url.Values)
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	if filter.Subject != "" {
		q.Set("subject", filter.Subject)
	}
	return api.render(ctx, http.StatusOK, "teachers", "Teachers", teachersData{
		Filter:   filter,
		Query:    q,
		Items:    items,
		Subjects: subjects,
		Total:    total,
		Pages:    pages,
	})
}

type teacherData struct {
	teacher.Detail
	Reviews []review.Review
	Course  string
}

func (api teacherApi) detail(ctx echo.Context) error {
	id := ctx.Param("id")
	course := ctx.QueryParam("course")

	reqCtx := ctx.Request().Context()
	detail, err := api.deps.TeacherSvc.Detail(reqCtx, id)
	if err != nil {
		if isNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting teacher detail")
	}
	reviews, err := api.deps.ReviewSvc.ListForTeacher(reqCtx, detail.ID, course, principal(ctx))
	if err != nil {
		return err
	}
	return api.render(ctx, http.StatusOK, "teacher", detail.FullName, teacherData{
		Detail:  detail,
		Reviews: reviews,
		Course:  course,
	})
}
