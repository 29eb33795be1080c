// Package middleware carries echo plumbing shared by the federation and
// operator surfaces.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Binder decodes request bodies. ActivityPub peers post JSON under
// application/activity+json or application/ld+json, which echo's default
// binder rejects; those are decoded as JSON here and everything else falls
// through to the default.
type Binder struct{}

func (b *Binder) Bind(i interface{}, c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.TrimSpace(base)

	switch base {
	case "application/activity+json", "application/ld+json":
		if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return nil
	}

	defaultBinder := &echo.DefaultBinder{}
	return defaultBinder.Bind(i, c)
}
