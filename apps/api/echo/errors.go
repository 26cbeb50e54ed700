package echoapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/admin"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
	"github.com/rmtbiph/ratemyteacher/core/user"
)

const genericErrorMsg = "Something went wrong. Please try again."

var (
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")

	// publicErrors are shown to users as they are.
	publicErrors = map[error]struct{}{
		access.ErrDomainNotAllowed:  {},
		access.ErrNotOwner:          {},
		admin.ErrInvalidCredentials: {},
		user.ErrInvalidCredentials:  {},
		user.ErrEmailExists:         {},
		teacher.ErrNotFound:         {},
		teacher.ErrHasReviews:       {},
		review.ErrNotFound:          {},
		review.ErrNotPublished:      {},
		review.ErrInvalidVote:       {},
		ticket.ErrNotFound:          {},
	}

	// notFoundErrors map to a 404 page when a GET fails with them.
	notFoundErrors = map[error]struct{}{
		teacher.ErrNotFound: {},
		review.ErrNotFound:  {},
		ticket.ErrNotFound:  {},
		user.ErrNotFound:    {},
	}
)

func isNotFound(err error) bool {
	_, ok := notFoundErrors[errors.Cause(err)]
	return ok
}

func isAPIRequest(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().URL.Path, "/api/")
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, appName string, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors, *core.ValidationError:
			code = http.StatusBadRequest
			message = core.ValidationFields(err, translator)
		default:
			if isNotFound(err) {
				code = http.StatusNotFound
				message = origErr.Error()
				break
			}
			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), principal(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}

		// Send response
		if ctx.Response().Committed {
			return
		}
		switch {
		case ctx.Request().Method == http.MethodHead: // Issue #608
			err = ctx.NoContent(code)
		case isAPIRequest(ctx):
			if m, ok := message.(string); ok {
				message = echo.Map{"error": m}
			}
			err = ctx.JSON(code, message)
		default:
			err = ctx.Render(code, "error", view{
				AppName: appName,
				Title:   http.StatusText(code),
				Path:    ctx.Request().URL.Path,
				User:    principal(ctx),
				Data:    errorPage{Code: code, Message: fmt.Sprint(message)},
			})
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

type errorPage struct {
	Code    int
	Message string
}

// redirect sends the user to path with the given query parameters (key, value pairs).
func redirect(ctx echo.Context, path string, kv ...string) error {
	if len(kv) > 1 {
		q := make(url.Values, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if kv[i+1] != "" {
				q.Set(kv[i], kv[i+1])
			}
		}
		if enc := q.Encode(); enc != "" {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			path += sep + enc
		}
	}
	return ctx.Redirect(http.StatusSeeOther, path)
}

// redirectToLogin sends an anonymous user to the login page, coming back to next (or returnPath) afterwards.
func redirectToLogin(ctx echo.Context, next string) error {
	if next == "" {
		next = returnPath(ctx)
	}
	return redirect(ctx, "/login", "redirectTo", core.SafeRedirectPath(next, "/"))
}

// returnPath is the page to come back to after signing in: the requested page for GET,
// otherwise the page the form was posted from (its `next` field, then a same-host Referer).
// POST-only routes are never returned.
func returnPath(ctx echo.Context) string {
	req := ctx.Request()
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return req.URL.RequestURI()
	}
	if next := ctx.FormValue("next"); next != "" {
		return next
	}
	ref, err := url.Parse(req.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != req.Host) {
		return ""
	}
	return ref.RequestURI()
}

// formError redirects back to path with a human-readable `error` for err.
// Unexpected errors are logged and replaced by a generic message.
func (s *server) formError(ctx echo.Context, path string, err error, kv ...string) error {
	cause := errors.Cause(err)
	if cause == access.ErrUnauthenticated {
		return redirectToLogin(ctx, "")
	}

	msg, ok := core.ValidationMessage(err, s.deps.Translator)
	if !ok {
		if _, public := publicErrors[cause]; public {
			msg, ok = sentence(cause.Error()), true
		}
	}
	if !ok {
		if core.IsShutdown(err) {
			return err
		}
		s.deps.Logger.Error(fmt.Sprintf("%s %s: %v", ctx.Request().Method, ctx.Path(), err), err, principal(ctx))
		msg = genericErrorMsg
	}
	return redirect(ctx, path, append([]string{"error", msg}, kv...)...)
}

// sentence capitalizes s and ends it with a period.
func sentence(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}
