package echoapi

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/user"
)

const (
	SessionCookieName = "rmt_session"

	csrfField       = "_csrf"
	csrfContextKey  = "csrf"
	principalKey    = "principal"
	redirectToParam = "redirectTo"
)

var errInvalidToken = errors.New("invalid session token")

// Claims represents the session claims transmitted via the session cookie.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func GetUserClaims(conf *core.Config, usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.SessionExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: usr.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(conf *core.Config, tokenStr string) (*Claims, error) {
	claims := new(Claims)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(conf.SecretKey), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// sessionMiddleware loads the principal of the session cookie, if any, into the request.
func (s *server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cookie, err := ctx.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			return next(ctx)
		}

		claims, err := parseToken(s.deps.Conf, cookie.Value)
		if err != nil {
			s.clearSession(ctx)
			return next(ctx)
		}

		p := &access.Principal{UserID: claims.Subject, Email: claims.Email}
		ctx.Set(principalKey, p)
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(access.WithPrincipal(req.Context(), p)))
		return next(ctx)
	}
}

// requireUser redirects anonymous users to the login page.
func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if principal(ctx) == nil {
			return redirectToLogin(ctx, "")
		}
		return next(ctx)
	}
}

func principal(ctx echo.Context) *access.Principal {
	p, _ := ctx.Get(principalKey).(*access.Principal)
	return p
}

func (s *server) setSession(ctx echo.Context, usr user.User) error {
	claims := GetUserClaims(s.deps.Conf, usr)
	token, err := GenerateToken(s.deps.Conf, claims)
	if err != nil {
		return err
	}
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		MaxAge:   int(s.deps.Conf.Server.SessionExpirationDelta.Seconds()),
		HttpOnly: true,
		Secure:   !s.deps.Conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *server) clearSession(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.deps.Conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

// Handlers

type authApi struct {
	*server
}

func registerAuth(s *server) {
	api := authApi{s}

	s.app.GET("/login", api.loginPage)
	s.app.POST("/login/signin", api.signIn)
	s.app.POST("/login/signup", api.signUp)
	s.app.POST("/logout", api.logout)
}

type loginData struct {
	Mode       string // signin | signup
	Email      string
	RedirectTo string
	Domain     string
}

func (api authApi) loginPage(ctx echo.Context) error {
	next := core.SafeRedirectPath(ctx.QueryParam(redirectToParam), "/")
	if principal(ctx) != nil {
		return ctx.Redirect(http.StatusSeeOther, next)
	}
	mode := ctx.QueryParam("mode")
	if mode != "signup" {
		mode = "signin"
	}
	return api.render(ctx, http.StatusOK, "login", "Sign in", loginData{
		Mode:       mode,
		Email:      ctx.QueryParam("email"),
		RedirectTo: next,
		Domain:     api.deps.Conf.AllowedEmailDomain,
	})
}

func (api authApi) signIn(ctx echo.Context) error {
	next := core.SafeRedirectPath(ctx.FormValue(redirectToParam), "/")

	var form user.SignInForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to SignInForm")
	}
	back := func(err error) error {
		return api.formError(ctx, "/login", err, "mode", "signin", "email", form.Email, redirectToParam, next)
	}

	if err := form.Validate(api.deps.Validate, api.deps.UserSvc); err != nil {
		return back(err)
	}
	usr, err := api.deps.UserSvc.SignIn(ctx.Request().Context(), form)
	if err != nil {
		return back(err)
	}
	if err = api.setSession(ctx, usr); err != nil {
		return err
	}
	api.metrics.event(eventSignIn)
	return ctx.Redirect(http.StatusSeeOther, next)
}

func (api authApi) signUp(ctx echo.Context) error {
	next := core.SafeRedirectPath(ctx.FormValue(redirectToParam), "/")

	var form user.SignUpForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to SignUpForm")
	}
	back := func(err error) error {
		return api.formError(ctx, "/login", err, "mode", "signup", "email", form.Email, redirectToParam, next)
	}

	if err := form.Validate(ctx.Request().Context(), api.deps.Validate, api.deps.UserSvc); err != nil {
		return back(err)
	}
	usr, err := api.deps.UserSvc.SignUp(ctx.Request().Context(), form)
	if err != nil {
		return back(err)
	}
	if err = api.setSession(ctx, usr); err != nil {
		return err
	}
	api.metrics.event(eventSignUp)
	return ctx.Redirect(http.StatusSeeOther, next)
}

func (api authApi) logout(ctx echo.Context) error {
	api.clearSession(ctx)
	return ctx.Redirect(http.StatusSeeOther, "/")
}
