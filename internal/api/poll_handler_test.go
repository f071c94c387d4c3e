package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/metadata"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	hourly      service.HourlyResult
	hourlyErr   error
	daily       service.DailyResult
	dailyErr    error
	refresh     metadata.Summary
	refreshErr  error
	lastIDs     []int64
	lastDryRun  bool
}

func (f *fakeService) RunHourly(ctx context.Context) (service.HourlyResult, error) {
	return f.hourly, f.hourlyErr
}

func (f *fakeService) RunDaily(ctx context.Context) (service.DailyResult, error) {
	return f.daily, f.dailyErr
}

func (f *fakeService) RefreshMetadata(ctx context.Context, ids []int64, dryRun bool) (metadata.Summary, error) {
	f.lastIDs = ids
	f.lastDryRun = dryRun
	return f.refresh, f.refreshErr
}

func newTestRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &PollHandler{service: svc, logger: logrus.New()}
	r := gin.New()
	r.POST("/internal/poll/hourly", h.RunHourly)
	r.POST("/internal/poll/daily", h.RunDaily)
	r.POST("/internal/metadata/refresh", h.RefreshMetadata)
	return r
}

func TestRunHourly_ReturnsSkippedBody(t *testing.T) {
	svc := &fakeService{hourly: service.HourlyResult{Status: "skipped", Reason: "already_running"}}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/internal/poll/hourly", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_running")
}

func TestRunHourly_ReturnsErrorAs500(t *testing.T) {
	svc := &fakeService{hourlyErr: errors.New("db down")}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/internal/poll/hourly", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunDaily_ReturnsCounters(t *testing.T) {
	svc := &fakeService{daily: service.DailyResult{RetentionDays: 7, EndedEventCount: 3, DeletedHourlyRows: 12}}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/internal/poll/daily", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted_hourly_rows":12`)
}

func TestRefreshMetadata_QueryParamTakesPrecedenceOverBody(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	body := bytes.NewBufferString(`{"event_id": 99}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/metadata/refresh?event_id=42", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{42}, svc.lastIDs)
	assert.True(t, svc.lastDryRun)
}

func TestRefreshMetadata_DryRunFalseWhenRequested(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	body := bytes.NewBufferString(`{"te_event_ids": [1,2,3], "dry_run": false}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/metadata/refresh", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{1, 2, 3}, svc.lastIDs)
	assert.False(t, svc.lastDryRun)
}

func TestRefreshMetadata_InvalidQueryEventIDIsBadRequest(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/internal/metadata/refresh?event_id=notanumber", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz_Returns200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", Healthz)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
