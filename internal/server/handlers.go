package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/clients/extraction"
	"github.com/finlens/finlens/internal/dataset"
	"github.com/finlens/finlens/internal/domain"
	"github.com/finlens/finlens/internal/export"
	"github.com/finlens/finlens/internal/forecast"
	"github.com/finlens/finlens/internal/insights"
	"github.com/finlens/finlens/internal/orchestrator"
)

// maxUploadBytes caps uploaded documents at 32 MB.
const maxUploadBytes = 32 << 20

// Handlers serves the dashboard API.
type Handlers struct {
	orch       *orchestrator.Orchestrator
	repo       *dataset.Repository
	charts     *charts.Service
	forecaster *forecast.Forecaster
	insights   *insights.Generator
	extraction *extraction.Client
	rates      RateSource
	log        zerolog.Logger
}

// NewHandlers creates the dashboard API handlers.
func NewHandlers(
	orch *orchestrator.Orchestrator,
	repo *dataset.Repository,
	chartSvc *charts.Service,
	forecaster *forecast.Forecaster,
	gen *insights.Generator,
	extractionClient *extraction.Client,
	rates RateSource,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		orch:       orch,
		repo:       repo,
		charts:     chartSvc,
		forecaster: forecaster,
		insights:   gen,
		extraction: extractionClient,
		rates:      rates,
		log:        log.With().Str("handler", "dashboard").Logger(),
	}
}

// RegisterRoutes registers all dashboard routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.HandleUpload)
	r.Get("/filter", h.HandleGetFilter)
	r.Post("/filter", h.HandleApplyFilter)
	r.Post("/forecast", h.HandleForecast)
	r.Get("/state", h.HandleState)

	r.Route("/charts", func(r chi.Router) {
		r.Get("/", h.HandleChartCatalog)
		r.Get("/{id}", h.HandleChart)
	})

	r.Route("/export", func(r chi.Router) {
		r.Get("/csv", h.HandleExportCSV)
		r.Get("/charts/{id}", h.HandleExportChart)
	})

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", h.HandleListDatasets)
		r.Get("/{id}", h.HandleGetDataset)
		r.Post("/{id}/activate", h.HandleActivateDataset)
		r.Delete("/{id}", h.HandleDeleteDataset)
	})

	r.Get("/currency/rate/{from}/{to}", h.HandleGetRate)
}

// HandleUpload handles POST /api/upload.
// Accepts either a multipart document (forwarded to the extraction service)
// or a raw dataset JSON body. The resulting dataset replaces the active one.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	payload, err := h.uploadPayload(r)
	if err != nil {
		h.log.Warn().Err(err).Msg("Upload rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds, err := dataset.Load(payload)
	if err != nil {
		var verr *dataset.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":      "dataset validation failed",
				"violations": verr.Violations,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Datasets arriving without narrative get the generated one.
	if len(ds.Insights) == 0 {
		ds.Insights = h.insights.Generate(ds)
	}
	if ds.Summary == "" {
		ds.Summary = h.insights.Summarize(ds)
	}

	if err := h.repo.Save(ds); err != nil {
		h.log.Error().Err(err).Msg("Failed to persist dataset")
		writeError(w, http.StatusInternalServerError, "failed to persist dataset")
		return
	}

	if err := h.orch.SetDataset(r.Context(), ds); err != nil {
		h.log.Error().Err(err).Msg("Failed to activate dataset")
		writeError(w, http.StatusInternalServerError, "failed to activate dataset")
		return
	}

	h.log.Info().
		Str("dataset_id", ds.ID).
		Str("company", ds.Company).
		Int("years", len(ds.Years)).
		Msg("Dataset uploaded")

	writeData(w, http.StatusCreated, map[string]interface{}{
		"dataset_id": ds.ID,
		"company":    ds.Company,
		"years":      ds.YearNumbers(),
		"warnings":   ds.Warnings,
	})
}

// uploadPayload extracts the dataset JSON from the request: either the raw
// body or an extracted document.
func (h *Handlers) uploadPayload(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return io.ReadAll(r.Body)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("multipart upload requires a 'file' field")
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	if h.extraction == nil || !h.extraction.Enabled() {
		return nil, errors.New("document uploads require an extraction service; upload dataset JSON instead")
	}
	return h.extraction.Extract(r.Context(), header.Filename, document)
}

// HandleGetFilter handles GET /api/filter.
// Query parameters: years (comma-separated), industry, currency.
func (h *Handlers) HandleGetFilter(w http.ResponseWriter, r *http.Request) {
	sel := domain.FilterSelection{
		Industry: r.URL.Query().Get("industry"),
		Currency: r.URL.Query().Get("currency"),
	}

	if raw := r.URL.Query().Get("years"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			year, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid year: "+part)
				return
			}
			sel.Years = append(sel.Years, year)
		}
	}

	h.applySelection(r.Context(), w, sel)
}

// HandleApplyFilter handles POST /api/filter with a JSON selection body.
func (h *Handlers) HandleApplyFilter(w http.ResponseWriter, r *http.Request) {
	var sel domain.FilterSelection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.applySelection(r.Context(), w, sel)
}

func (h *Handlers) applySelection(ctx context.Context, w http.ResponseWriter, sel domain.FilterSelection) {
	if err := h.orch.ApplySelection(ctx, sel); err != nil {
		view := h.orch.Current()
		if view.State == orchestrator.StateError {
			// The pipeline failed; the view carries the last good data.
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error": err.Error(),
				"data":  view,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeData(w, http.StatusOK, h.orch.Current())
}

// HandleState handles GET /api/state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.orch.Current())
}

// ForecastRequest is the POST /api/forecast body.
type ForecastRequest struct {
	Metric  string `json:"metric"`
	Periods int    `json:"periods"`
}

// HandleForecast handles POST /api/forecast. The forecast runs over the
// currently filtered view of the active dataset.
func (h *Handlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}

	view := h.orch.Current()
	if view.Derived == nil {
		writeError(w, http.StatusConflict, "no dataset loaded")
		return
	}

	series, ok := view.Derived.Values[req.Metric]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or absent metric: "+req.Metric)
		return
	}

	result, err := h.forecaster.Forecast(req.Metric, series, req.Periods)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeData(w, http.StatusOK, result)
}

// HandleChartCatalog handles GET /api/charts.
func (h *Handlers) HandleChartCatalog(w http.ResponseWriter, r *http.Request) {
	view := h.orch.Current()
	if view.Filtered == nil {
		writeError(w, http.StatusConflict, "no dataset loaded")
		return
	}
	writeData(w, http.StatusOK, view.Charts)
}

// HandleChart handles GET /api/charts/{id}.
func (h *Handlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	chart, ok := h.buildChart(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeData(w, http.StatusOK, chart)
}

func (h *Handlers) buildChart(w http.ResponseWriter, id string) (*charts.ChartSpec, bool) {
	view := h.orch.Current()
	if view.Filtered == nil || view.Derived == nil {
		writeError(w, http.StatusConflict, "no dataset loaded")
		return nil, false
	}

	chart, err := h.charts.Build(id, view.Filtered, view.Derived)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return chart, true
}

// HandleExportCSV handles GET /api/export/csv.
func (h *Handlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	view := h.orch.Current()
	if view.Filtered == nil || view.Derived == nil {
		writeError(w, http.StatusConflict, "no dataset loaded")
		return
	}

	data, err := export.CSV(view.Filtered, view.Derived)
	if err != nil {
		h.log.Error().Err(err).Msg("CSV export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="metrics.csv"`)
	w.Write(data)
}

// HandleExportChart handles GET /api/export/charts/{id}.
func (h *Handlers) HandleExportChart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chart, ok := h.buildChart(w, id)
	if !ok {
		return
	}

	data, err := export.ChartJSON(chart)
	if err != nil {
		h.log.Error().Err(err).Str("chart", id).Msg("Chart export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.json"`)
	w.Write(data)
}

// HandleListDatasets handles GET /api/datasets.
func (h *Handlers) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list datasets")
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	writeData(w, http.StatusOK, list)
}

// HandleGetDataset handles GET /api/datasets/{id}.
func (h *Handlers) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ds, err := h.repo.Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to load dataset")
		writeError(w, http.StatusInternalServerError, "failed to load dataset")
		return
	}
	if ds == nil {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	writeData(w, http.StatusOK, ds)
}

// HandleActivateDataset handles POST /api/datasets/{id}/activate, switching
// the dashboard to a previously uploaded dataset.
func (h *Handlers) HandleActivateDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ds, err := h.repo.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load dataset")
		return
	}
	if ds == nil {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}

	if err := h.orch.SetDataset(r.Context(), ds); err != nil {
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to activate dataset")
		writeError(w, http.StatusInternalServerError, "failed to activate dataset")
		return
	}

	writeData(w, http.StatusOK, h.orch.Current())
}

// HandleDeleteDataset handles DELETE /api/datasets/{id}.
func (h *Handlers) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if active := h.orch.Dataset(); active != nil && active.ID == id {
		writeError(w, http.StatusConflict, "cannot delete the active dataset")
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Str("dataset_id", id).Msg("Failed to delete dataset")
		writeError(w, http.StatusInternalServerError, "failed to delete dataset")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"deleted": id})
}

// HandleGetRate handles GET /api/currency/rate/{from}/{to}.
func (h *Handlers) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to currencies are required")
		return
	}

	rate, err := h.rates.Rate(r.Context(), from, to)
	if err != nil {
		h.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("Rate lookup failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeData(w, http.StatusOK, map[string]interface{}{
		"from": from,
		"to":   to,
		"rate": rate,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeData wraps a payload in the standard response envelope.
func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
