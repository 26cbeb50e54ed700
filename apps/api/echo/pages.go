package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func registerPages(s *server) {
	s.app.GET("/", s.home)
	s.app.GET("/site-guidelines", s.staticPage("guidelines", "Site Guidelines"))
	s.app.GET("/terms-and-conditions", s.staticPage("terms", "Terms and Conditions"))
	s.app.GET("/privacy-policy", s.staticPage("privacy", "Privacy Policy"))
	s.app.GET("/healthz", s.healthz)
}

func (s *server) home(ctx echo.Context) error {
	return s.render(ctx, http.StatusOK, "home", "", nil)
}

func (s *server) staticPage(name, title string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return s.render(ctx, http.StatusOK, name, title, nil)
	}
}

func (s *server) healthz(ctx echo.Context) error {
	status := echo.Map{"status": "ok", "build": s.deps.Conf.Build}
	if s.deps.DB != nil {
		pctx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(pctx); err != nil {
			s.deps.Logger.Warn("healthz: database unreachable", err)
			status["status"] = "db unavailable"
			return ctx.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return ctx.JSON(http.StatusOK, status)
}
