package api

import (
	"github.com/labstack/echo/v4"

	xhttp "KPISentinel/pkg/http"
)

// Router registers every route group on the server.
type Router struct {
	groups []xhttp.Handler
}

func NewRouter(groups ...xhttp.Handler) *Router {
	out := make([]xhttp.Handler, 0, len(groups))
	for _, g := range groups {
		if g != nil {
			out = append(out, g)
		}
	}
	return &Router{groups: out}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	for _, g := range r.groups {
		g.RegisterRoutes(e)
	}
}

var _ xhttp.Handler = (*Router)(nil)
