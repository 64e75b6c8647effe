package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	"KPISentinel/internal/usecase"
	xhttp "KPISentinel/pkg/http"
	xlogger "KPISentinel/pkg/logger"
)

const maxIngestBody = 64 << 10

// IngestHandler accepts samples over HTTP.
type IngestHandler struct {
	logger  *xlogger.Logger
	ingest  *usecase.IngestUseCase
	metrics domrepo.Metrics
}

func NewIngestHandler(logger *xlogger.Logger, ingest *usecase.IngestUseCase, metrics domrepo.Metrics) *IngestHandler {
	return &IngestHandler{logger: logger, ingest: ingest, metrics: metrics}
}

func (h *IngestHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/ingest", h.Ingest)
}

// Ingest reads the raw body and hands it to the shared strict decoder, so HTTP and
// Kafka accept exactly the same documents.
func (h *IngestHandler) Ingest(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxIngestBody+1))
	if err != nil {
		h.metrics.RecordRejected(usecase.SourceHTTP, "ERR_MALFORMED")
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{Code: "ERR_MALFORMED", Message: err.Error()}})
	}
	if len(body) > maxIngestBody {
		h.metrics.RecordRejected(usecase.SourceHTTP, "ERR_TOO_LARGE")
		return xhttp.DataResponse(c, http.StatusRequestEntityTooLarge, []xhttp.ValidationError{{
			Code:    "ERR_TOO_LARGE",
			Message: "request body exceeds 64KB",
		}})
	}

	res, err := h.ingest.IngestPayload(usecase.SourceHTTP, body)
	if err != nil {
		var inErr *models.InputError
		if errors.As(err, &inErr) {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code:    inErr.Code,
				Field:   inErr.Field,
				Message: inErr.Reason,
			}})
		}
		h.logger.Error("ingest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
