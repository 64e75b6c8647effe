package api

import (
	"github.com/labstack/echo/v4"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	xhttp "KPISentinel/pkg/http"
	xlogger "KPISentinel/pkg/logger"
)

// AlertsHandler serves the persisted alert history.
type AlertsHandler struct {
	logger *xlogger.Logger
	log    domrepo.AlertLog
}

func NewAlertsHandler(logger *xlogger.Logger, log domrepo.AlertLog) *AlertsHandler {
	return &AlertsHandler{logger: logger, log: log}
}

func (h *AlertsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/alerts", h.List)
}

func (h *AlertsHandler) List(c echo.Context) error {
	req := models.NewAlertQuery()
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	alerts, err := h.log.Recent(c.Request().Context(), req.Metric, req.Limit)
	if err != nil {
		h.logger.Error("alert history query failed", xlogger.String("metric", req.Metric), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, alerts)
}
