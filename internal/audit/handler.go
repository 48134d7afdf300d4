package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hq/meridian-access/internal/platform/httpx"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

type validationError struct {
	field string
}

func (e validationError) Error() string {
	return fmt.Sprintf("invalid filter %q", e.field)
}

// Handler serves the decision audit timeline over JSON and CSV.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler creates a new audit handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers the audit endpoints on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleTimeline)
	r.Get("/export", h.handleExport)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to load audit timeline")
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":   rows,
		"paging": result.Paging,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to export audit timeline")
		return
	}
	csvBytes, err := writeCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to encode export")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"decision-audit.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	now := h.now().UTC()
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return TimelineFilters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return TimelineFilters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) {
		return TimelineFilters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return TimelineFilters{}, validationError{field: "range"}
	}

	filters := TimelineFilters{
		// End of range is exclusive in SQL, include the whole "to" day.
		From:    fromTime,
		To:      toTime.Add(24 * time.Hour),
		Pattern: strings.TrimSpace(r.URL.Query().Get("pattern")),
		Source:  strings.TrimSpace(r.URL.Query().Get("source")),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("user_id")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "user_id"}
		}
		filters.UserID = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("tenant_id")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "tenant_id"}
		}
		filters.TenantID = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("granted")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return TimelineFilters{}, validationError{field: "granted"}
		}
		filters.Granted = &parsed
	}
	filters.Page = 1
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "page"}
		}
		filters.Page = parsed
	}
	filters.PageSize = defaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

func writeCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{"occurred_at", "user_id", "pattern", "granted", "source", "matched_pattern", "tenant_id", "duration_ms", "request_id", "ip"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.OccurredAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.UserID, 10),
			row.Pattern,
			strconv.FormatBool(row.Granted),
			row.Source,
			row.MatchedPattern,
			strconv.FormatInt(row.TenantID, 10),
			strconv.FormatInt(row.DurationMs, 10),
			row.RequestID,
			row.IP,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
