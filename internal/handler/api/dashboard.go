package api

import (
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"KPISentinel/internal/domain/models"
	"KPISentinel/internal/usecase"
	xlogger "KPISentinel/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer adapts html/template to echo.Renderer.
type TemplateRenderer struct {
	templates *template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: t}, nil
}

func (r *TemplateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

type dashboardPage struct {
	Views      []models.KPIView
	RecentN    int
	LiveAlerts bool
}

// DashboardHandler serves the HTML dashboard.
type DashboardHandler struct {
	logger     *xlogger.Logger
	dashboard  *usecase.DashboardUseCase
	renderer   *TemplateRenderer
	recentN    int
	liveAlerts bool
}

func NewDashboardHandler(logger *xlogger.Logger, dashboard *usecase.DashboardUseCase, renderer *TemplateRenderer, recentN int, liveAlerts bool) *DashboardHandler {
	return &DashboardHandler{logger: logger, dashboard: dashboard, renderer: renderer, recentN: recentN, liveAlerts: liveAlerts}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.Renderer = h.renderer
	e.GET("/", h.Index)
}

func (h *DashboardHandler) Index(c echo.Context) error {
	page := dashboardPage{
		Views:      h.dashboard.List(h.recentN),
		RecentN:    h.recentN,
		LiveAlerts: h.liveAlerts,
	}
	if err := c.Render(http.StatusOK, "dashboard.html", page); err != nil {
		h.logger.Error("render dashboard", xlogger.Error(err))
		return err
	}
	return nil
}
