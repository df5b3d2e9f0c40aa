// Package admind serves the operator HTTP API. It lists users, reads and
// writes their extension values, reloads modules and manages Z-lines.
// Every handler runs its work on the IRC server's event loop.
package admind

import (
	"context"
	"errors"
	"net/http"

	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// Server is the admin API
type Server struct {
	srv   *server.Server
	token string
	echo  *echo.Echo
}

// New creates the admin API for srv. Requests other than /healthz must
// carry token as a bearer token; an empty token locks them out.
func New(srv *server.Server, token string) *Server {
	s := &Server{
		srv:   srv,
		token: token,
		echo:  echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Validator = newValidator()
	s.echo.Use(middleware.Recover())
	s.echo.Use(metrics.Middleware())
	s.route(s.echo)
	return s
}

func (s *Server) route(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	api := e.Group("", s.authMiddleware)
	api.GET("/users", s.handleUsers)
	api.GET("/users/:uuid/extensions", s.handleGetExtensions)
	api.PUT("/users/:uuid/extensions/:name", s.handlePutExtension)
	api.DELETE("/users/:uuid/extensions/:name", s.handleDeleteExtension)
	api.GET("/modules", s.handleModules)
	api.POST("/modules/:name/reload", s.handleReloadModule)
	api.GET("/zlines", s.handleZLines)
	api.POST("/zlines", s.handleAddZLine)
	api.DELETE("/zlines/:mask", s.handleDeleteZLine)
}

// ServeHTTP lets the API be mounted or tested without a listener
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// StartAdminServer serves the API on addr until Shutdown
func (s *Server) StartAdminServer(addr string) error {
	log.Info().Str("addr", addr).Msg("admin API listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the API
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// do runs fn on the event loop for the lifetime of the request
func (s *Server) do(c echo.Context, fn func()) error {
	if err := s.srv.Do(c.Request().Context(), fn); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is not running")
	}
	return nil
}
