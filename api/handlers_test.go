/*
handlers_test.go - HTTP tests for the pay API

Tests for:
- Draft pay, save, list and duplicate detection
- Final pay of contracts ending in the month
- Working stats modes
- Holidays (company + public calendar)
- Dataset loading
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
	"github.com/warp/pay-engine/store/sqlite"
)

const testDataset = `
timezone: UTC
company:
  id: company-1
  name: Aide à domicile
  amountPerKm: 0.35
surchargePlans:
  - {id: plan-1, name: Standard, sunday: 20}
services:
  - id: svc-1
    nature: hourly
    versions:
      - {startDate: 2018-01-01, surchargeId: plan-1}
workers:
  - id: aux-1
    firstname: Jeanne
    lastname: Martin
    transport: {type: public}
  - id: aux-2
    firstname: Paul
    lastname: Durand
    transport: {type: public}
contracts:
  - id: contract-1
    workerId: aux-1
    startDate: 2018-01-01
    versions:
      - {startDate: 2018-01-01, weeklyHours: 24}
  - id: contract-2
    workerId: aux-2
    startDate: 2018-01-01
    endDate: 2019-05-15
    endReason: resignation
    versions:
      - {startDate: 2018-01-01, weeklyHours: 10}
events:
  - id: ev-1
    type: intervention
    workerId: aux-1
    serviceId: svc-1
    startDate: 2019-05-06T09:00:00
    endDate: 2019-05-06T11:00:00
  - id: ev-2
    type: intervention
    workerId: aux-2
    serviceId: svc-1
    startDate: 2019-05-07T14:00:00
    endDate: 2019-05-07T15:30:00
`

type testEnv struct {
	store   *sqlite.Store
	handler *Handler
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ds, err := factory.Parse([]byte(testDataset))
	require.NoError(t, err)
	require.NoError(t, factory.Seed(context.Background(), ds, store))

	calendar := generic.NewFrenchHolidays()
	svc := pay.NewService(store, store, nil, generic.Calendars{calendar, store}, zap.NewNop(),
		pay.WithClock(func() time.Time { return time.Date(2019, 6, 2, 10, 0, 0, 0, time.UTC) }))

	h := NewHandler(svc, store, calendar, time.UTC, zap.NewNop())
	h.now = func() time.Time { return time.Date(2019, 6, 2, 10, 0, 0, 0, time.UTC) }

	return &testEnv{store: store, handler: h, router: NewRouter(h, RouterOptions{})}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// PAY
// =============================================================================

func TestDraftPay_ReturnsActiveContracts(t *testing.T) {
	// GIVEN: two workers, one whose contract ends mid-May
	env := newTestEnv(t)

	// WHEN: drafting May 2019
	rec := env.do(t, http.MethodGet, "/api/pay/draft?month=05-2019", nil)

	// THEN: only the worker still under contract at month end is drafted
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DraftPayResponse](t, rec)

	assert.Equal(t, "05-2019", resp.Period.Month)
	assert.Equal(t, "2019-05-01", resp.Period.StartDate)
	assert.Equal(t, "2019-05-31", resp.Period.EndDate)
	require.Len(t, resp.Pays, 1)
	assert.Equal(t, "aux-1", resp.Pays[0].WorkerID)
	assert.Equal(t, "05-2019", resp.Pays[0].Month)
	assert.True(t, decimal.NewFromInt(2).Equal(resp.Pays[0].WorkedHours), resp.Pays[0].WorkedHours.String())
}

func TestDraftPay_DateRangeIsWidenedToMonth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/pay/draft?startDate=2019-05-10&endDate=2019-05-12", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DraftPayResponse](t, rec)
	assert.Equal(t, "2019-05-01", resp.Period.StartDate)
	assert.Equal(t, "2019-05-31", resp.Period.EndDate)
}

func TestDraftPay_InvalidPeriod(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing period", "/api/pay/draft"},
		{"bad month", "/api/pay/draft?month=13-2019"},
		{"bad date", "/api/pay/draft?startDate=2019-05-01&endDate=tomorrow"},
		{"end before start", "/api/pay/draft?startDate=2019-05-10&endDate=2019-05-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, "Invalid period", resp.Error)
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestSavePays_Lifecycle(t *testing.T) {
	// GIVEN: the draft pay of May
	env := newTestEnv(t)
	draft := decode[DraftPayResponse](t, env.do(t, http.MethodGet, "/api/pay/draft?month=05-2019", nil))
	require.Len(t, draft.Pays, 1)

	// WHEN: saving it
	rec := env.do(t, http.MethodPost, "/api/pay", SavePaysRequest{Pays: draft.Pays})

	// THEN: it is stored and listed
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[SavedResponse](t, rec).Saved)

	listed := decode[[]pay.Record](t, env.do(t, http.MethodGet, "/api/pay?month=05-2019", nil))
	require.Len(t, listed, 1)
	assert.Equal(t, "aux-1", listed[0].WorkerID)
	assert.NotEmpty(t, listed[0].ID)
	assert.False(t, listed[0].CreatedAt.IsZero())

	// AND: another month lists nothing
	other := decode[[]pay.Record](t, env.do(t, http.MethodGet, "/api/pay?month=04-2019", nil))
	assert.Empty(t, other)

	// AND: saving twice conflicts
	rec = env.do(t, http.MethodPost, "/api/pay", SavePaysRequest{Pays: draft.Pays})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: the stored worker is no longer drafted
	redraft := decode[DraftPayResponse](t, env.do(t, http.MethodGet, "/api/pay/draft?month=05-2019", nil))
	assert.Empty(t, redraft.Pays)
}

func TestSavePays_InvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	t.Run("malformed body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/pay", "{")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no pay", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/pay", SavePaysRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("record without month", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/pay", SavePaysRequest{Pays: []pay.Record{{WorkerID: "aux-1"}}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad list month", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/pay?month=2019-05", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// FINAL PAY
// =============================================================================

func TestFinalPay_Lifecycle(t *testing.T) {
	// GIVEN: a contract ending on May 15th
	env := newTestEnv(t)

	// WHEN: drafting final pays of May
	rec := env.do(t, http.MethodGet, "/api/final-pay/draft?month=05-2019", nil)

	// THEN: only the ending contract is returned, with its end data
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft := decode[DraftFinalPayResponse](t, rec)
	require.Len(t, draft.FinalPays, 1)
	fp := draft.FinalPays[0]
	assert.Equal(t, "aux-2", fp.WorkerID)
	assert.Equal(t, "resignation", fp.EndReason)
	assert.Equal(t, 15, fp.EndDate.Day())
	assert.True(t, decimal.RequireFromString("1.5").Equal(fp.WorkedHours), fp.WorkedHours.String())

	// AND: it can be saved once
	rec = env.do(t, http.MethodPost, "/api/final-pay", SaveFinalPaysRequest{FinalPays: draft.FinalPays})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	listed := decode[[]pay.FinalRecord](t, env.do(t, http.MethodGet, "/api/final-pay", nil))
	require.Len(t, listed, 1)
	assert.Equal(t, "resignation", listed[0].EndReason)

	rec = env.do(t, http.MethodPost, "/api/final-pay", SaveFinalPaysRequest{FinalPays: draft.FinalPays})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// WORKING STATS
// =============================================================================

func TestWorkingStats(t *testing.T) {
	env := newTestEnv(t)

	t.Run("week of the first intervention", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/working-stats?startDate=2019-05-06&endDate=2019-05-12", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[WorkingStatsResponse](t, rec)
		assert.Equal(t, pay.StatsWeek, resp.Mode)
		assert.Empty(t, resp.Period.Month)
		require.Len(t, resp.Stats, 2)

		byWorker := map[string]pay.WorkingStats{}
		for _, s := range resp.Stats {
			byWorker[s.WorkerID] = s
		}
		assert.True(t, decimal.NewFromInt(2).Equal(byWorker["aux-1"].WorkedHours))
		assert.True(t, decimal.RequireFromString("1.5").Equal(byWorker["aux-2"].WorkedHours))
	})

	t.Run("month query defaults to month mode", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/working-stats?month=05-2019", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[WorkingStatsResponse](t, rec)
		assert.Equal(t, pay.StatsMonth, resp.Mode)
		assert.Equal(t, "05-2019", resp.Period.Month)
	})

	t.Run("unknown mode", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/working-stats?month=05-2019&mode=day", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidays_CreateAndList(t *testing.T) {
	// GIVEN: a company holiday created through the API
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{
		CompanyID: "company-1",
		Date:      "2019-06-21",
		Name:      "Fête de la musique",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: listing the current year
	rec = env.do(t, http.MethodGet, "/api/holidays?company_id=company-1", nil)

	// THEN: the company holiday sits among the public holidays, by date
	require.Equal(t, http.StatusOK, rec.Code)
	holidays := decode[[]HolidayDTO](t, rec)

	sources := map[string]string{}
	for i, hol := range holidays {
		sources[hol.Date] = hol.Source
		if i > 0 {
			assert.LessOrEqual(t, holidays[i-1].Date, hol.Date)
		}
	}
	assert.Equal(t, "company", sources["2019-06-21"])
	assert.Equal(t, "calendar", sources["2019-05-01"])
	assert.Equal(t, "calendar", sources["2019-12-25"])
}

func TestHolidays_InvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "21/06/2019", Name: "Fête"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2019-06-21"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/holidays?year=next", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DATASET
// =============================================================================

func TestLoadDataset_Reset(t *testing.T) {
	// GIVEN: a saved pay
	env := newTestEnv(t)
	draft := decode[DraftPayResponse](t, env.do(t, http.MethodGet, "/api/pay/draft?month=05-2019", nil))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/pay", SavePaysRequest{Pays: draft.Pays}).Code)

	// WHEN: reloading the dataset with reset
	rec := env.do(t, http.MethodPost, "/api/dataset?reset=true", testDataset)

	// THEN: the store holds the dataset again and no pay
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	summary := decode[DatasetSummaryDTO](t, rec)
	assert.Equal(t, "company-1", summary.Company)
	assert.Equal(t, 2, summary.Workers)
	assert.Equal(t, 2, summary.Events)
	assert.True(t, summary.Reset)

	listed := decode[[]pay.Record](t, env.do(t, http.MethodGet, "/api/pay", nil))
	assert.Empty(t, listed)

	redraft := decode[DraftPayResponse](t, env.do(t, http.MethodGet, "/api/pay/draft?month=05-2019", nil))
	assert.Len(t, redraft.Pays, 1)
}

func TestLoadDataset_Invalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/dataset", "events: [{id: ev-9, type: party, workerId: aux-1}]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/dataset?reset=maybe", testDataset)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ROUTER
// =============================================================================

func TestRouter_Ping(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ".", strings.TrimSpace(rec.Body.String()))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{generic.ErrDuplicatePay, http.StatusConflict},
		{&generic.WorkerError{WorkerID: "aux-1", Err: generic.ErrDuplicatePay}, http.StatusConflict},
		{generic.ErrInvalidRecord, http.StatusBadRequest},
		{generic.ErrInvalidPeriod, http.StatusBadRequest},
		{generic.ErrPayNotFound, http.StatusNotFound},
		{context.Canceled, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
