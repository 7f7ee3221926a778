/*
handlers.go - HTTP API handlers for the pay engine

PURPOSE:
  Exposes the pay computations via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to pay.Service. No computation happens
  here.

ENDPOINTS:
  Pay:
    GET    /api/pay/draft              Draft pay of a month
    POST   /api/pay                    Save validated draft pays
    GET    /api/pay                    Stored pays (?month=MM-YYYY)

  Final pay:
    GET    /api/final-pay/draft        Final pay of contracts ending in a period
    POST   /api/final-pay              Save validated final pays
    GET    /api/final-pay              Stored final pays

  Stats:
    GET    /api/working-stats          Interim stats (?mode=week|month)

  Holidays:
    GET    /api/holidays               Company and public holidays of a year
    POST   /api/holidays               Create a company holiday

  Dataset:
    POST   /api/dataset                Load a planning dataset (see dataset.go)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid period, invalid record or dataset
  - 404: Resource not found
  - 409: Pay already stored for the worker and month
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Deploy behind the platform gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need besides the pay service.
type Store interface {
	factory.Seeder
	GetHolidays(companyID string, year int) []generic.Holiday
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Pay   *pay.Service
	Store Store

	// Calendar lists the public holidays shown next to company ones.
	Calendar generic.HolidayCalendar

	// Location is where query dates are read.
	Location *time.Location

	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new handler. A nil calendar lists only stored
// holidays; a nil location reads dates in UTC.
func NewHandler(svc *pay.Service, store Store, calendar generic.HolidayCalendar, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Pay:      svc,
		Store:    store,
		Calendar: calendar,
		Location: loc,
		logger:   logger.Named("api"),
		now:      time.Now,
	}
}

// =============================================================================
// PAY HANDLERS
// =============================================================================

// DraftPay computes the draft pay of a month.
// GET /api/pay/draft?month=05-2019
func (h *Handler) DraftPay(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}
	period = generic.MonthOf(period.Start)

	pays, err := h.Pay.DraftPay(r.Context(), period)
	if err != nil {
		h.writeServiceError(w, "Failed to compute draft pay", err)
		return
	}

	writeJSON(w, http.StatusOK, DraftPayResponse{Period: periodDTO(period, true), Pays: nonNil(pays)})
}

// SavePays stores validated draft pays.
// POST /api/pay
func (h *Handler) SavePays(w http.ResponseWriter, r *http.Request) {
	var req SavePaysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Pays) == 0 {
		writeError(w, http.StatusBadRequest, "No pay to save", nil)
		return
	}

	if err := h.Pay.SavePays(r.Context(), req.Pays); err != nil {
		h.writeServiceError(w, "Failed to save pays", err)
		return
	}

	writeJSON(w, http.StatusCreated, SavedResponse{Saved: len(req.Pays)})
}

// ListPays returns stored pays, optionally of one month.
// GET /api/pay?month=05-2019
func (h *Handler) ListPays(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	pays, err := h.Pay.ListPays(r.Context(), month)
	if err != nil {
		h.writeServiceError(w, "Failed to list pays", err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(pays))
}

// =============================================================================
// FINAL PAY HANDLERS
// =============================================================================

// DraftFinalPay computes the final pay of contracts ending in a period.
// GET /api/final-pay/draft?startDate=2019-05-01&endDate=2019-05-31
func (h *Handler) DraftFinalPay(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	finalPays, err := h.Pay.DraftFinalPay(r.Context(), period)
	if err != nil {
		h.writeServiceError(w, "Failed to compute final pay", err)
		return
	}

	writeJSON(w, http.StatusOK, DraftFinalPayResponse{Period: periodDTO(period, false), FinalPays: nonNil(finalPays)})
}

// SaveFinalPays stores validated final pays.
// POST /api/final-pay
func (h *Handler) SaveFinalPays(w http.ResponseWriter, r *http.Request) {
	var req SaveFinalPaysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.FinalPays) == 0 {
		writeError(w, http.StatusBadRequest, "No final pay to save", nil)
		return
	}

	if err := h.Pay.SaveFinalPays(r.Context(), req.FinalPays); err != nil {
		h.writeServiceError(w, "Failed to save final pays", err)
		return
	}

	writeJSON(w, http.StatusCreated, SavedResponse{Saved: len(req.FinalPays)})
}

// ListFinalPays returns stored final pays.
// GET /api/final-pay?month=05-2019
func (h *Handler) ListFinalPays(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	finalPays, err := h.Pay.ListFinalPays(r.Context(), month)
	if err != nil {
		h.writeServiceError(w, "Failed to list final pays", err)
		return
	}

	writeJSON(w, http.StatusOK, nonNil(finalPays))
}

// =============================================================================
// WORKING STATS
// =============================================================================

// WorkingStats returns interim stats. The mode defaults to month when the
// period is given as a month, week otherwise.
// GET /api/working-stats?startDate=2019-05-06&endDate=2019-05-12&mode=week
func (h *Handler) WorkingStats(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	mode := pay.StatsMode(r.URL.Query().Get("mode"))
	switch mode {
	case pay.StatsWeek, pay.StatsMonth:
	case "":
		mode = pay.StatsWeek
		if r.URL.Query().Get("month") != "" {
			mode = pay.StatsMonth
		}
	default:
		writeError(w, http.StatusBadRequest, "Invalid mode (use week or month)", nil)
		return
	}

	stats, err := h.Pay.WorkingStats(r.Context(), period, mode)
	if err != nil {
		h.writeServiceError(w, "Failed to compute working stats", err)
		return
	}

	writeJSON(w, http.StatusOK, WorkingStatsResponse{Period: periodDTO(period, mode == pay.StatsMonth), Mode: mode, Stats: nonNil(stats)})
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns stored and public holidays of a year.
// GET /api/holidays?company_id=company-1&year=2019
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	year := h.now().In(h.Location).Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}

	var dtos []HolidayDTO
	for _, hol := range h.Store.GetHolidays(companyID, year) {
		dtos = append(dtos, holidayDTO(hol, "company"))
	}
	if h.Calendar != nil {
		for _, hol := range h.Calendar.GetHolidays(companyID, year) {
			dtos = append(dtos, holidayDTO(hol, "calendar"))
		}
	}
	sort.SliceStable(dtos, func(i, j int) bool { return dtos[i].Date < dtos[j].Date })

	writeJSON(w, http.StatusOK, nonNil(dtos))
}

// CreateHoliday creates a new company holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Holiday name is required", nil)
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{
		CompanyID: req.CompanyID,
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.writeServiceError(w, "Failed to create holiday", err)
		return
	}

	writeJSON(w, http.StatusCreated, holidayDTO(holiday, "company"))
}

// =============================================================================
// HELPERS
// =============================================================================

// parsePeriod reads month=MM-YYYY, or startDate and endDate.
func (h *Handler) parsePeriod(r *http.Request) (generic.Period, error) {
	q := r.URL.Query()
	if month := q.Get("month"); month != "" {
		t, err := time.ParseInLocation("01-2006", month, h.Location)
		if err != nil {
			return generic.Period{}, fmt.Errorf("%w: month %q is not MM-YYYY", generic.ErrInvalidPeriod, month)
		}
		return generic.MonthOf(t), nil
	}

	startStr, endStr := q.Get("startDate"), q.Get("endDate")
	if startStr == "" || endStr == "" {
		return generic.Period{}, fmt.Errorf("%w: month or startDate and endDate are required", generic.ErrInvalidPeriod)
	}
	start, err := time.ParseInLocation("2006-01-02", startStr, h.Location)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: startDate %q", generic.ErrInvalidPeriod, startStr)
	}
	end, err := time.ParseInLocation("2006-01-02", endStr, h.Location)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: endDate %q", generic.ErrInvalidPeriod, endStr)
	}
	return generic.NewPeriod(start, end)
}

func monthParam(r *http.Request) (string, error) {
	month := r.URL.Query().Get("month")
	if month == "" {
		return "", nil
	}
	if _, err := time.Parse("01-2006", month); err != nil {
		return "", fmt.Errorf("month %q is not MM-YYYY", month)
	}
	return month, nil
}

func periodDTO(p generic.Period, withMonth bool) PeriodDTO {
	dto := PeriodDTO{StartDate: p.Start.Format("2006-01-02"), EndDate: p.End.Format("2006-01-02")}
	if withMonth {
		dto.Month = p.MonthLabel()
	}
	return dto
}

func holidayDTO(hol generic.Holiday, source string) HolidayDTO {
	return HolidayDTO{
		ID:        hol.ID,
		CompanyID: hol.CompanyID,
		Date:      hol.Date.Format("2006-01-02"),
		Name:      hol.Name,
		Recurring: hol.Recurring,
		Source:    source,
	}
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrDuplicatePay):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
