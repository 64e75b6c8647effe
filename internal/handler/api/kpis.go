package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"KPISentinel/internal/domain/models"
	"KPISentinel/internal/service/cache"
	"KPISentinel/internal/usecase"
	xhttp "KPISentinel/pkg/http"
	xlogger "KPISentinel/pkg/logger"
)

// KPIHandler serves the JSON presentation API.
type KPIHandler struct {
	logger    *xlogger.Logger
	dashboard *usecase.DashboardUseCase
	cache     cache.BytesCache
	ttl       time.Duration
	maxN      int
}

// NewKPIHandler caches rendered responses for ttl when c is non-nil and ttl > 0.
// Requested n is capped at maxN.
func NewKPIHandler(logger *xlogger.Logger, dashboard *usecase.DashboardUseCase, c cache.BytesCache, ttl time.Duration, maxN int) *KPIHandler {
	return &KPIHandler{logger: logger, dashboard: dashboard, cache: c, ttl: ttl, maxN: maxN}
}

func (h *KPIHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/kpis", h.List)
	g.GET("/kpis/:name", h.Get)
}

func (h *KPIHandler) List(c echo.Context) error {
	req := models.NewKPIQuery()
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	n := h.capN(req.N)
	return h.cached(c, fmt.Sprintf("kpis:all:%d", n), func() (interface{}, error) {
		return h.dashboard.List(n), nil
	})
}

func (h *KPIHandler) Get(c echo.Context) error {
	req := models.NewKPIQuery()
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	n := h.capN(req.N)
	return h.cached(c, fmt.Sprintf("kpis:one:%s:%d", req.Name, n), func() (interface{}, error) {
		view, ok := h.dashboard.Get(req.Name, n)
		if !ok {
			return nil, xhttp.NotFoundErrorf("metric %q not found", req.Name)
		}
		return view, nil
	})
}

func (h *KPIHandler) capN(n int) int {
	if h.maxN > 0 && n > h.maxN {
		return h.maxN
	}
	return n
}

// cached serves a rendered envelope from the cache or builds and stores it.
// Errors are never cached.
func (h *KPIHandler) cached(c echo.Context, key string, build func() (interface{}, error)) error {
	useCache := h.cache != nil && h.ttl > 0
	if useCache {
		if b, ok, err := h.cache.GetBytes(key); err != nil {
			h.logger.Warn("presentation cache read failed", xlogger.String("key", key), xlogger.Error(err))
		} else if ok {
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	data, err := build()
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	body, err := json.Marshal(xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
	if err != nil {
		h.logger.Error("marshal presentation response", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if useCache {
		if err := h.cache.SetBytes(key, body, h.ttl); err != nil {
			h.logger.Warn("presentation cache write failed", xlogger.String("key", key), xlogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, body)
}
