package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
)

// deviceApi is the JSON API of the legacy anonymous clients.
type deviceApi struct {
	*server
}

func registerDeviceAPI(s *server) {
	api := deviceApi{s}

	v1 := s.app.Group("/api/v1")
	v1.POST("/devices", api.register)
	v1.POST("/reviews", api.submit)
	v1.GET("/teachers", api.teachers)
	v1.GET("/teachers/:id", api.teacher)
}

var deviceErrCodes = map[error]int{
	review.ErrInvalidDevice: http.StatusUnauthorized,
	review.ErrRateLimited:   http.StatusTooManyRequests,
	review.ErrDuplicate:     http.StatusConflict,
	teacher.ErrNotFound:     http.StatusNotFound,
}

type deviceCredentials struct {
	DeviceID     string `json:"device_id"`
	DeviceSecret string `json:"device_secret"`
}

func (api deviceApi) register(ctx echo.Context) error {
	id, secret, err := api.deps.DeviceSvc.Register(ctx.Request().Context())
	if err != nil {
		return err
	}
	api.metrics.event(eventDeviceCreated)
	return ctx.JSON(http.StatusCreated, deviceCredentials{DeviceID: id, DeviceSecret: secret})
}

func (api deviceApi) submit(ctx echo.Context) error {
	var form review.DeviceForm
	if err := ctx.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if err := form.Validate(api.deps.Validate); err != nil {
		return err
	}

	r, err := api.deps.DeviceSvc.Submit(ctx.Request().Context(), form)
	if err != nil {
		cause := errors.Cause(err)
		if code, ok := deviceErrCodes[cause]; ok {
			return ctx.JSON(code, echo.Map{"error": cause.Error()})
		}
		return err
	}
	api.metrics.event(eventDeviceReview)
	return ctx.JSON(http.StatusCreated, echo.Map{"review_id": r.ID, "status": r.Status})
}

func (api deviceApi) teachers(ctx echo.Context) error {
	var filter teacher.Filter
	if err := ctx.Bind(&filter); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	items, total, pages, err := api.deps.TeacherSvc.List(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	if items == nil {
		items = []teacher.ListItem{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"items": items, "total": total, "pages": pages})
}

func (api deviceApi) teacher(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	detail, err := api.deps.TeacherSvc.Detail(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	reviews, err := api.deps.ReviewSvc.ListForTeacher(reqCtx, detail.ID, ctx.QueryParam("course"), nil)
	if err != nil {
		return err
	}
	if reviews == nil {
		reviews = []review.Review{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teacher": detail, "reviews": reviews})
}
