// Package api exposes HTTP handlers for the insights service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/insights/internal/auth"
	"example.com/insights/internal/domain"
	"example.com/insights/internal/generative"
	"example.com/insights/internal/ingest"
	"example.com/insights/internal/insight"
	"example.com/insights/internal/jobs"
)

// maxUploadBytes bounds the accepted CSV payload.
const maxUploadBytes = 10 << 20

// historyWindowDays is the window the insight endpoints compare against.
const (
	insightHistoryDays    = 14
	predictionHistoryDays = 30
)

// enqueuer publishes ingest jobs; satisfied by jobs.Producer.
type enqueuer interface {
	Enqueue(context.Context, jobs.IngestJob) error
}

// Handler coordinates HTTP requests with the domain and generative
// services.
type Handler struct {
	service    *domain.Service
	batches    domain.BatchStore
	producer   enqueuer
	generative *generative.Service
	goals      insight.Goals
	log        *zap.SugaredLogger

	// now is swapped out in tests.
	now func() time.Time
}

// NewHandler builds a Handler. The goals are the configured defaults
// applied when a prediction request carries none of its own.
func NewHandler(service *domain.Service, batches domain.BatchStore, producer enqueuer, gen *generative.Service, goals insight.Goals, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		service:    service,
		batches:    batches,
		producer:   producer,
		generative: gen,
		goals:      goals,
		log:        log,
		now:        time.Now,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/uploads", h.uploads)
	mux.HandleFunc("/v1/uploads/", h.uploadByID)
	mux.HandleFunc("/v1/activity", h.listActivity)
	mux.HandleFunc("/v1/activity/", h.activitySubroutes)
	mux.HandleFunc("/v1/ai/insights", h.aiInsights)
	mux.HandleFunc("/v1/ai/predictions", h.aiPredictions)
	mux.HandleFunc("/v1/ai/health", h.aiHealth)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) uploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createUpload(w, r)
	case http.MethodGet:
		h.listUploads(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsWrite)
	if !ok {
		return
	}

	payload, fileName, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "empty upload")
		return
	}

	// Reject a bad header synchronously so the client learns about it
	// before a batch is created or queued.
	if err := ingest.CheckHeader(bytes.NewReader(payload)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_header", err.Error())
		return
	}

	now := h.now().UTC()
	batch := domain.CsvBatch{
		ID:        uuid.NewString(),
		OwnerID:   claims.Subject,
		FileName:  fileName,
		Status:    domain.BatchPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.batches.Create(r.Context(), batch, payload); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if err := h.producer.Enqueue(r.Context(), jobs.IngestJob{BatchID: batch.ID, OwnerID: batch.OwnerID}); err != nil {
		h.log.Errorw("failed to enqueue ingest job", "batch_id", batch.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to queue upload for processing")
		return
	}

	writeData(w, http.StatusAccepted, toBatchView(batch))
}

// readUpload accepts either a raw CSV body or a multipart form with a
// "file" field.
func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", errors.New("unable to parse multipart form")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("missing file field")
		}
		defer file.Close()
		payload, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, "", err
		}
		return payload, header.Filename, nil
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, "", err
	}
	fileName := r.Header.Get("X-File-Name")
	if fileName == "" {
		fileName = "upload.csv"
	}
	return payload, fileName, nil
}

func (h *Handler) listUploads(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsRead)
	if !ok {
		return
	}

	batches, err := h.batches.ListByOwner(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	views := make([]BatchView, 0, len(batches))
	for _, batch := range batches {
		views = append(views, toBatchView(batch))
	}
	writeData(w, http.StatusOK, views)
}

func (h *Handler) uploadByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/uploads/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing batch id")
		return
	}

	switch {
	case r.Method == http.MethodGet && sub == "":
		h.getUpload(w, r, id, false)
	case r.Method == http.MethodGet && sub == "status":
		h.getUpload(w, r, id, true)
	case r.Method == http.MethodDelete && sub == "":
		h.deleteUpload(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getUpload(w http.ResponseWriter, r *http.Request, id string, statusOnly bool) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsRead)
	if !ok {
		return
	}

	batch, err := h.batches.Get(r.Context(), claims.Subject, id)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if statusOnly {
		writeData(w, http.StatusOK, BatchStatusView{
			ID:         batch.ID,
			Status:     string(batch.Status),
			RowCount:   batch.RowCount,
			ErrorCount: batch.ErrorCount,
		})
		return
	}
	writeData(w, http.StatusOK, toBatchView(*batch))
}

func (h *Handler) deleteUpload(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsWrite)
	if !ok {
		return
	}

	if err := h.batches.Delete(r.Context(), claims.Subject, id); err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeMetricsRead)
	if !ok {
		return
	}

	records, err := h.service.ListActivity(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	views := make([]RecordView, 0, len(records))
	for _, record := range records {
		views = append(views, toRecordView(record))
	}
	writeData(w, http.StatusOK, views)
}

func (h *Handler) activitySubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	switch rest := strings.TrimPrefix(r.URL.Path, "/v1/activity/"); rest {
	case "summary/weekly":
		h.weeklySummary(w, r)
	case "stats":
		h.stats(w, r)
	default:
		h.activityByDate(w, r, rest)
	}
}

func (h *Handler) activityByDate(w http.ResponseWriter, r *http.Request, raw string) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsRead)
	if !ok {
		return
	}

	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	record, err := h.service.ActivityForDate(r.Context(), claims.Subject, date)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no activity recorded for that date")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeData(w, http.StatusOK, toRecordView(*record))
}

func (h *Handler) weeklySummary(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsRead)
	if !ok {
		return
	}

	summary, err := h.service.GetWeeklySummary(r.Context(), claims.Subject, h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeMetricsRead)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeData(w, http.StatusOK, stats)
}

// InsightsRequest is the payload for POST /v1/ai/insights. When the
// metrics are omitted, today's stored record is used.
type InsightsRequest struct {
	ActivityMetrics *insight.ActivityMetrics `json:"activity_metrics"`
}

func (h *Handler) aiInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	var req InsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	history, err := h.service.HistoryWindow(r.Context(), claims.Subject, insightHistoryDays, h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	metrics, err := h.resolveMetrics(r.Context(), claims.Subject, req.ActivityMetrics)
	if err != nil {
		if errors.Is(err, domain.ErrNoActivityData) {
			writeError(w, http.StatusBadRequest, "no_activity_data", domain.ErrNoActivityData.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := h.generative.Insights(r.Context(), metrics, history)
	writeData(w, http.StatusOK, resp)
}

// resolveMetrics falls back to today's stored record when the request
// carries no metrics.
func (h *Handler) resolveMetrics(ctx context.Context, ownerID string, provided *insight.ActivityMetrics) (insight.ActivityMetrics, error) {
	if provided != nil {
		return *provided, nil
	}
	record, err := h.service.ActivityForDate(ctx, ownerID, h.now())
	if errors.Is(err, domain.ErrRecordNotFound) {
		return insight.ActivityMetrics{}, domain.ErrNoActivityData
	}
	if err != nil {
		return insight.ActivityMetrics{}, err
	}
	return insight.ActivityMetrics{
		DailySteps:    record.Steps,
		ActiveMinutes: record.ActiveMinutes,
		Distance:      record.DistanceKM,
	}, nil
}

// PredictionsRequest is the payload for POST /v1/ai/predictions. When
// the history is omitted, the owner's trailing 30 days are used.
type PredictionsRequest struct {
	ActivityHistory []generative.HistoryPoint `json:"activity_history"`
	Goals           *insight.Goals            `json:"goals"`
}

func (h *Handler) aiPredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeInsightsRead)
	if !ok {
		return
	}

	var req PredictionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	history := generative.ToRecords(req.ActivityHistory)
	if len(history) == 0 {
		stored, err := h.service.HistoryWindow(r.Context(), claims.Subject, predictionHistoryDays, h.now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		history = stored
	}
	if len(history) == 0 {
		writeError(w, http.StatusBadRequest, "no_activity_data", domain.ErrNoActivityData.Error())
		return
	}

	goals := h.goals
	if req.Goals != nil {
		goals = *req.Goals
	}

	resp := h.generative.Predictions(r.Context(), goals, history, h.now())
	writeData(w, http.StatusOK, resp)
}

func (h *Handler) aiHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeInsightsRead); !ok {
		return
	}

	if err := h.generative.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

// BatchView exposes a CSV batch to clients.
type BatchView struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Status     string    `json:"status"`
	RowCount   int       `json:"row_count"`
	ErrorCount int       `json:"error_count"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BatchStatusView is the condensed polling payload.
type BatchStatusView struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	RowCount   int    `json:"row_count"`
	ErrorCount int    `json:"error_count"`
}

// RecordView exposes one activity record to clients.
type RecordView struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Steps         int     `json:"steps"`
	DistanceKM    float64 `json:"distance_km"`
	ActiveMinutes int     `json:"active_minutes"`
}

func toBatchView(batch domain.CsvBatch) BatchView {
	return BatchView{
		ID:         batch.ID,
		FileName:   batch.FileName,
		Status:     string(batch.Status),
		RowCount:   batch.RowCount,
		ErrorCount: batch.ErrorCount,
		Attempts:   batch.Attempts,
		CreatedAt:  batch.CreatedAt,
		UpdatedAt:  batch.UpdatedAt,
	}
}

func toRecordView(record domain.ActivityRecord) RecordView {
	return RecordView{
		ID:            record.ID,
		Date:          record.Date.Format("2006-01-02"),
		Steps:         record.Steps,
		DistanceKM:    record.DistanceKM,
		ActiveMinutes: record.ActiveMinutes,
	}
}

func writeData(w http.ResponseWriter, status int, payload interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": payload})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
