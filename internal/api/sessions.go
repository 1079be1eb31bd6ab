package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/privacy"
	"github.com/tphakala/showcase/internal/showcase"
	"github.com/tphakala/showcase/internal/visibility"
)

// maxEntriesPerReport bounds one intersection batch.
const maxEntriesPerReport = 1000

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse describes a newly created visibility session.
type SessionResponse struct {
	ID         string `json:"id"`
	Cap        int    `json:"cap"`
	RootMargin int    `json:"root_margin"`
	Frames     int    `json:"frames"`
}

// IntersectionRequest is a batch of viewport changes reported by the page.
type IntersectionRequest struct {
	Entries []visibility.Entry `json:"entries"`
}

// CommandResponse carries the frame commands the page must apply.
type CommandResponse struct {
	Commands []visibility.Command `json:"commands"`
	Loaded   int                  `json:"loaded"`
}

func apiError(c echo.Context, status int, msg string) error {
	return c.JSON(status, ErrorResponse{Error: msg})
}

// createSession registers a session holding one frame per rendered card,
// in the order the page shows them.
func (s *Server) createSession(c echo.Context) error {
	m, err := s.loader.Load(c.Request().Context())
	if err != nil {
		s.logger.Warn("Session requested but manifest is unavailable", logger.Error(err))
		return apiError(c, http.StatusBadGateway, privacy.WrapError(err).Error())
	}

	page := showcase.BuildPage(m, s.pageOptions())
	frames := make([]visibility.Frame, 0, len(page.Cards))
	for i := range page.Cards {
		frames = append(frames, visibility.Frame{Day: page.Cards[i].Number, Src: page.Cards[i].URL})
	}

	session := s.registry.Create(frames)
	cfg := s.registry.Config()
	return c.JSON(http.StatusCreated, SessionResponse{
		ID:         session.ID,
		Cap:        cfg.Cap,
		RootMargin: cfg.RootMargin,
		Frames:     len(frames),
	})
}

func (s *Server) deleteSession(c echo.Context) error {
	s.registry.Delete(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// reportIntersections applies a batch of intersection changes and returns
// the resulting load and unload commands.
func (s *Server) reportIntersections(c echo.Context) error {
	session, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return apiError(c, http.StatusNotFound, "unknown session")
	}

	var req IntersectionRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid intersection report")
	}
	if len(req.Entries) > maxEntriesPerReport {
		return apiError(c, http.StatusRequestEntityTooLarge, "too many entries")
	}

	cmds := session.Apply(req.Entries)
	return c.JSON(http.StatusOK, s.commandResponse(session, cmds))
}

// reportFrameError swaps a failed frame for the fallback panel. Only the
// first report for a frame gets a command; repeats answer 204.
func (s *Server) reportFrameError(c echo.Context) error {
	session, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return apiError(c, http.StatusNotFound, "unknown session")
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return apiError(c, http.StatusBadRequest, "invalid card index")
	}

	cmd, ok := session.FrameError(index)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}

	s.logger.Warn("Challenge frame failed to load",
		logger.String("session_id", session.ID),
		logger.Int("index", index),
		logger.Int("day", cmd.Day),
		logger.String("src", cmd.Src))

	html, err := s.renderer.FallbackHTML(cmd.Src)
	if err != nil {
		s.logger.Error("Failed to render frame fallback", logger.Error(err))
		return apiError(c, http.StatusInternalServerError, "failed to render fallback")
	}
	cmd.HTML = html

	cmds := append([]visibility.Command{cmd}, session.Fill()...)
	return c.JSON(http.StatusOK, s.commandResponse(session, cmds))
}

func (s *Server) commandResponse(session *visibility.Session, cmds []visibility.Command) CommandResponse {
	if cmds == nil {
		cmds = []visibility.Command{}
	}
	loaded := session.Loaded()

	if s.metrics != nil {
		for i := range cmds {
			s.metrics.Visibility.RecordCommand(string(cmds[i].Action))
		}
		s.metrics.Visibility.ObserveLoaded(loaded)
	}

	return CommandResponse{Commands: cmds, Loaded: loaded}
}
