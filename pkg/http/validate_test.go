package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleReq struct {
	Name  string   `json:"name" validate:"required"`
	Value *float64 `json:"value" validate:"required"`
	Limit int      `json:"limit" default:"20" validate:"gte=1,lte=100"`
}

func newCtx(body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequest(t *testing.T) {
	t.Run("valid with defaults", func(t *testing.T) {
		c, _ := newCtx(`{"name":"cpu","value":0}`)
		var r sampleReq
		assert.Nil(t, ReadAndValidateRequest(c, &r))
		assert.Equal(t, 20, r.Limit)
		require.NotNil(t, r.Value)
		assert.Equal(t, 0.0, *r.Value)
	})

	t.Run("missing fields use wire names", func(t *testing.T) {
		c, _ := newCtx(`{}`)
		var r sampleReq
		errs, ok := ReadAndValidateRequest(c, &r).([]ValidationError)
		require.True(t, ok)
		require.Len(t, errs, 2)
		assert.Equal(t, "name", errs[0].Field)
		assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
		assert.Equal(t, "value", errs[1].Field)
	})

	t.Run("range rule carries params", func(t *testing.T) {
		c, _ := newCtx(`{"name":"cpu","value":1,"limit":500}`)
		var r sampleReq
		errs, ok := ReadAndValidateRequest(c, &r).([]ValidationError)
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "ERR_LTE", errs[0].Code)
		assert.Equal(t, "limit", errs[0].Field)
		assert.Equal(t, "limit must be less than or equal to 100", errs[0].Message)
		assert.Equal(t, map[string]interface{}{"max": "100"}, errs[0].Params)
	})

	t.Run("type mismatch", func(t *testing.T) {
		c, _ := newCtx(`{"name":"cpu","value":"high"}`)
		var r sampleReq
		errs, ok := ReadAndValidateRequest(c, &r).([]ValidationError)
		require.True(t, ok)
		assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
	})
}

func TestAppErrorResponse_UsesStatus(t *testing.T) {
	c, rec := newCtx("")
	require.NoError(t, AppErrorResponse(c, NotFoundErrorf("metric %q not found", "cpu")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ERR_NOT_FOUND"`)
}
