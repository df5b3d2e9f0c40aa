package admind

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Kufat/inspircd/extension"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// maxValueSize bounds a PUT body; a metadata value has to fit on one line
const maxValueSize = 8192

// authMiddleware checks the bearer token
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	var users, servers int
	var uptime time.Duration
	if err := s.do(c, func() {
		users = len(s.srv.Users())
		servers = len(s.srv.Servers())
		uptime = s.srv.Uptime()
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"server":  s.srv.Name(),
		"users":   users,
		"servers": servers,
		"uptime":  uptime.Round(time.Second).String(),
	})
}

func (s *Server) handleUsers(c echo.Context) error {
	var list []userView
	if err := s.do(c, func() {
		for _, u := range s.srv.Users() {
			list = append(list, newUserView(u))
		}
	}); err != nil {
		return err
	}
	sortUsers(list)
	return c.JSON(http.StatusOK, list)
}

// lookupUser resolves the :uuid parameter on the event loop
func (s *Server) lookupUser(c echo.Context, fn func(u *server.User) error) error {
	id := c.Param("uuid")
	var result error
	if err := s.do(c, func() {
		u := s.srv.UserByUUID(id)
		if u == nil {
			result = echo.NewHTTPError(http.StatusNotFound, "No such user")
			return
		}
		result = fn(u)
	}); err != nil {
		return err
	}
	return result
}

func (s *Server) handleGetExtensions(c echo.Context) error {
	var values map[string]string
	err := s.lookupUser(c, func(u *server.User) error {
		values = s.srv.Extensions().Snapshot(u, "")
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, values)
}

// handlePutExtension decodes the request body as the item's wire text
func (s *Server) handlePutExtension(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxValueSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read body")
	}
	if len(body) > maxValueSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Value too large")
	}
	value := strings.TrimRight(string(body), "\r\n")
	if value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty value, use DELETE to unset")
	}
	return s.applyExtension(c, value)
}

func (s *Server) handleDeleteExtension(c echo.Context) error {
	return s.applyExtension(c, "")
}

func (s *Server) applyExtension(c echo.Context, value string) error {
	name := c.Param("name")
	var current string
	var set bool
	err := s.lookupUser(c, func(u *server.User) error {
		if err := s.srv.ApplyExtension(u, name, value); err != nil {
			return extensionError(err)
		}
		if u.IsLocal() {
			s.srv.SyncExtension(u, name)
		}
		item, _ := s.srv.Extensions().Lookup(name)
		current, set = item.Serialize(u)
		log.Info().Str("uuid", u.UUID()).Str("item", name).Bool("set", set).Msg("extension changed through admin API")
		return nil
	})
	if err != nil {
		return err
	}
	if !set {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, map[string]string{name: current})
}

func extensionError(err error) error {
	switch {
	case errors.Is(err, extension.ErrUnknownItem):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, extension.ErrMalformed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleModules(c echo.Context) error {
	type moduleView struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Items       []string `json:"items,omitempty"`
	}
	var list []moduleView
	if err := s.do(c, func() {
		for _, name := range s.srv.ModuleNames() {
			m, _ := s.srv.Module(name)
			view := moduleView{Name: name, Description: m.Description()}
			for _, item := range s.srv.Extensions().Items(name) {
				view.Items = append(view.Items, item.Name())
			}
			list = append(list, view)
		}
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleReloadModule(c echo.Context) error {
	name := c.Param("name")
	var result error
	if err := s.do(c, func() {
		result = s.srv.ReloadModule(name)
	}); err != nil {
		return err
	}
	switch {
	case errors.Is(result, server.ErrModuleNotLoaded):
		return echo.NewHTTPError(http.StatusNotFound, result.Error())
	case result != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, result.Error())
	}
	log.Info().Str("module", name).Msg("module reloaded through admin API")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"module":  name,
	})
}

// zlineRequest is the body of POST /zlines
type zlineRequest struct {
	Mask     string `json:"mask" validate:"required,max=64"`
	Duration string `json:"duration"`
	Reason   string `json:"reason" validate:"required,max=255"`
}

func (s *Server) handleZLines(c echo.Context) error {
	var list []zlineView
	if err := s.do(c, func() {
		for _, zl := range s.srv.ZLines() {
			list = append(list, newZLineView(zl))
		}
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleAddZLine(c echo.Context) error {
	var req zlineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Bad request")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := parseDuration(req.Duration)
		if err != nil || d < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid duration")
		}
		duration = d
	}

	var added bool
	if err := s.do(c, func() {
		added = s.srv.AddZLine(duration, "admin", req.Reason, req.Mask)
		if added {
			s.srv.ApplyZLines()
		}
	}); err != nil {
		return err
	}
	if !added {
		return echo.NewHTTPError(http.StatusConflict, "Z-line already exists")
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleDeleteZLine(c echo.Context) error {
	mask := c.Param("mask")
	var removed bool
	if err := s.do(c, func() {
		removed = s.srv.DelZLine(mask)
	}); err != nil {
		return err
	}
	if !removed {
		return echo.NewHTTPError(http.StatusNotFound, "No such Z-line")
	}
	return c.NoContent(http.StatusNoContent)
}
