package api

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/showcase"
)

// handlePage renders the showcase page. When the manifest cannot be loaded
// the error panel is rendered with status 502.
func (s *Server) handlePage(c echo.Context) error {
	opts := s.pageOptions()

	status := http.StatusOK
	var page showcase.Page

	m, err := s.loader.Load(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to load manifest",
			logger.String("url", s.loader.URL()),
			logger.Error(err))
		status = http.StatusBadGateway
		page = showcase.ErrorPage(err, opts)
	} else {
		page = showcase.BuildPage(m, opts)
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, &page); err != nil {
		s.logger.Error("Failed to render page", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render page")
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return c.HTMLBlob(status, buf.Bytes())
}
