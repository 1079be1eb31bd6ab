package api

import (
	"github.com/labstack/echo/v4"

	"github.com/tphakala/showcase/internal/showcase"
)

// registerAssetRoutes serves the embedded stylesheet and script below AssetBase.
func (s *Server) registerAssetRoutes() {
	assets := s.echo.Group(AssetBase, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
			return next(c)
		}
	})
	assets.StaticFS("/", showcase.Assets())
}
