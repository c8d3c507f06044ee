// Package api serves the analyses over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	fitanalytics "github.com/lucasjlepore/fit-analytics"
	"github.com/lucasjlepore/fit-analytics/export"
)

// DefaultPeriodMonths is used when a request has no months parameter.
const DefaultPeriodMonths = 6

// Analyzer is the subset of the analytics service the handlers call.
type Analyzer interface {
	AnalyzeClimbs(ctx context.Context, athleteID string, periodMonths int) (fitanalytics.ClimbReport, error)
	EstimateFTP(ctx context.Context, athleteID string, periodMonths int) (fitanalytics.FTPReport, error)
	AnalyzeCadence(ctx context.Context, athleteID string, periodMonths int, ftpW *float64) (fitanalytics.CadenceReport, error)
	AnalyzeTrends(ctx context.Context, athleteID, period string) (fitanalytics.TrendReport, error)
}

// Handler serves the analysis endpoints.
type Handler struct {
	analyzer    Analyzer
	logger      *log.Logger
	chartMonths int
}

// NewHandler returns a Handler. chartMonths limits the climb chart to the
// most recent months; zero draws the whole series.
func NewHandler(a Analyzer, logger *log.Logger, chartMonths int) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{analyzer: a, logger: logger, chartMonths: chartMonths}
}

// RegisterRoutes registers the routes on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.Health).Methods("GET")

	api := router.PathPrefix("/api/athletes/{id}").Subrouter()
	api.HandleFunc("/climbs", h.GetClimbs).Methods("GET")
	api.HandleFunc("/climbs/chart", h.GetClimbChart).Methods("GET")
	api.HandleFunc("/ftp", h.GetFTP).Methods("GET")
	api.HandleFunc("/cadence", h.GetCadence).Methods("GET")
	api.HandleFunc("/trends", h.GetTrends).Methods("GET")
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetClimbs runs the climb analysis.
// GET /api/athletes/{id}/climbs?months=6
func (h *Handler) GetClimbs(w http.ResponseWriter, r *http.Request) {
	months, ok := h.queryMonths(w, r)
	if !ok {
		return
	}
	report, err := h.analyzer.AnalyzeClimbs(r.Context(), mux.Vars(r)["id"], months)
	if err != nil {
		h.fail(w, "climbs", err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// GetClimbChart draws the monthly climb trend as an HTML page.
// GET /api/athletes/{id}/climbs/chart?months=6
func (h *Handler) GetClimbChart(w http.ResponseWriter, r *http.Request) {
	months, ok := h.queryMonths(w, r)
	if !ok {
		return
	}
	athleteID := mux.Vars(r)["id"]
	report, err := h.analyzer.AnalyzeClimbs(r.Context(), athleteID, months)
	if err != nil {
		h.fail(w, "climb chart", err)
		return
	}

	buckets := report.MonthlyTrends
	if h.chartMonths > 0 && len(buckets) > h.chartMonths {
		buckets = buckets[len(buckets)-h.chartMonths:]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := export.ClimbTrendChart(w, buckets, fmt.Sprintf("Climbing trend for %s", athleteID)); err != nil {
		h.logger.Printf("[ERROR] climb chart for %s: %v", athleteID, err)
	}
}

// GetFTP estimates FTP.
// GET /api/athletes/{id}/ftp?months=6
func (h *Handler) GetFTP(w http.ResponseWriter, r *http.Request) {
	months, ok := h.queryMonths(w, r)
	if !ok {
		return
	}
	report, err := h.analyzer.EstimateFTP(r.Context(), mux.Vars(r)["id"], months)
	if err != nil {
		h.fail(w, "ftp", err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// GetCadence runs the cadence analysis. ftp is optional.
// GET /api/athletes/{id}/cadence?months=6&ftp=250
func (h *Handler) GetCadence(w http.ResponseWriter, r *http.Request) {
	months, ok := h.queryMonths(w, r)
	if !ok {
		return
	}
	var ftp *float64
	if raw := r.URL.Query().Get("ftp"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "ftp must be a number")
			return
		}
		ftp = &v
	}
	report, err := h.analyzer.AnalyzeCadence(r.Context(), mux.Vars(r)["id"], months, ftp)
	if err != nil {
		h.fail(w, "cadence", err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// GetTrends compares training periods.
// GET /api/athletes/{id}/trends?period=quarter
func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	report, err := h.analyzer.AnalyzeTrends(r.Context(), mux.Vars(r)["id"], period)
	if err != nil {
		h.fail(w, "trends", err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// fail maps an analysis error to a status code. Insufficient data is not
// an error and never reaches here.
func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	var verr *fitanalytics.ValidationError
	var ferr *fitanalytics.FetchError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &ferr):
		h.logger.Printf("[ERROR] %s: %v", what, err)
		h.respondError(w, http.StatusBadGateway, "Telemetry store unavailable")
	default:
		h.logger.Printf("[ERROR] %s: %v", what, err)
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to run %s analysis", what))
	}
}

func (h *Handler) queryMonths(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("months")
	if raw == "" {
		return DefaultPeriodMonths, true
	}
	months, err := strconv.Atoi(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "months must be an integer")
		return 0, false
	}
	return months, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("[ERROR] Failed to encode JSON response: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
