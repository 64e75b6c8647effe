package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"KPISentinel/internal/domain/models"
	domrepo "KPISentinel/internal/domain/repository"
	"KPISentinel/pkg/util"
)

const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

var requestValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}()

// IngestResult is returned for an accepted sample.
type IngestResult struct {
	MetricName string `json:"metric_name"`
	Samples    int    `json:"samples"`
}

// IngestUseCase validates samples at the boundary and appends them to the store.
type IngestUseCase struct {
	store   domrepo.SeriesStore
	metrics domrepo.Metrics
}

func NewIngestUseCase(store domrepo.SeriesStore, metrics domrepo.Metrics) *IngestUseCase {
	return &IngestUseCase{store: store, metrics: metrics}
}

// Ingest appends one sample. Rejections return an *models.InputError and leave the store untouched.
func (u *IngestUseCase) Ingest(source string, req models.IngestRequest) (IngestResult, error) {
	start := time.Now()
	defer func() { u.metrics.RecordLatency("ingest_"+source, time.Since(start).Seconds()) }()

	name, ts, value, err := parseRequest(req)
	if err != nil {
		u.reject(source, err)
		return IngestResult{}, err
	}
	if err := u.store.Append(name, ts, value); err != nil {
		u.reject(source, err)
		return IngestResult{}, err
	}
	u.metrics.RecordIngested(source)
	return IngestResult{MetricName: name, Samples: u.store.Len(name)}, nil
}

// IngestPayload decodes a JSON sample strictly, rejecting unknown fields, then ingests it.
// Every transport goes through here so they share one schema.
func (u *IngestUseCase) IngestPayload(source string, payload []byte) (IngestResult, error) {
	req, err := DecodeIngestRequest(payload)
	if err != nil {
		u.reject(source, err)
		return IngestResult{}, err
	}
	return u.Ingest(source, req)
}

// DecodeIngestRequest parses exactly one JSON object in the ingest schema.
func DecodeIngestRequest(payload []byte) (models.IngestRequest, error) {
	var req models.IngestRequest
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("trailing data after object")
	}
	if err != nil {
		return models.IngestRequest{}, models.NewInputError("", "ERR_MALFORMED",
			fmt.Errorf("%w: %v", models.ErrInvalidPayload, err))
	}
	return req, nil
}

func (u *IngestUseCase) reject(source string, err error) {
	code := "ERR_UNKNOWN"
	var inErr *models.InputError
	if errors.As(err, &inErr) {
		code = inErr.Code
	}
	u.metrics.RecordRejected(source, code)
}

func parseRequest(req models.IngestRequest) (string, time.Time, float64, error) {
	name := req.MetricName
	if strings.TrimSpace(name) == "" {
		return "", time.Time{}, 0, models.NewInputError("metric_name", "ERR_REQUIRED",
			fmt.Errorf("%w: metric_name is required", models.ErrInvalidPayload))
	}
	if err := validateRequest(req); err != nil {
		return "", time.Time{}, 0, err
	}
	// The name is the series key; it is stored exactly as sent or not at all.
	if name != strings.TrimSpace(name) {
		return "", time.Time{}, 0, models.NewInputError("metric_name", "ERR_WHITESPACE",
			fmt.Errorf("%w: metric_name has leading or trailing whitespace", models.ErrInvalidPayload))
	}
	ts, ok := util.ParseTime(req.Timestamp)
	if !ok {
		return "", time.Time{}, 0, models.NewInputError("timestamp", "ERR_INVALID_TIMESTAMP",
			fmt.Errorf("%w: got %q", models.ErrInvalidTimestamp, req.Timestamp))
	}
	return name, ts, *req.Value, nil
}

// validateRequest applies the struct's validate tags and reports the first failure.
func validateRequest(req models.IngestRequest) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewInputError("", "ERR_UNKNOWN", fmt.Errorf("%w: %v", models.ErrInvalidPayload, err))
	}
	fe := fieldErrs[0]
	reason := fe.Field() + " is required"
	if fe.Tag() == "max" {
		reason = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	} else if fe.Tag() != "required" {
		reason = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return models.NewInputError(fe.Field(), "ERR_"+strings.ToUpper(fe.Tag()),
		fmt.Errorf("%w: %s", models.ErrInvalidPayload, reason))
}
