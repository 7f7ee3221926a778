/*
dataset.go - Planning dataset loading

PURPOSE:
  Loads a planning dataset (company, surcharge plans, services, workers,
  contracts, events, holidays, distances) into the store so pay can be
  computed on it. Used for demos, imports from the scheduling side and
  integration tests.

USAGE VIA API:
  POST /api/dataset            Body: YAML or JSON dataset (factory format)
  POST /api/dataset?reset=true Clears the store first

NOTE:
  reset=true deletes every stored pay as well. Only use it in development
  or demo environments.

SEE ALSO:
  - factory/dataset.go: File format
*/
package api

import (
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/warp/pay-engine/factory"
)

// MaxDatasetBytes bounds the request body of a dataset load.
const MaxDatasetBytes = 10 << 20

// LoadDataset parses and seeds a dataset.
// POST /api/dataset
func (h *Handler) LoadDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reset := false
	if v := r.URL.Query().Get("reset"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reset flag", err)
			return
		}
		reset = parsed
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDatasetBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Failed to read dataset", err)
		return
	}

	ds, err := factory.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dataset", err)
		return
	}

	if reset {
		if err := h.Store.Reset(ctx); err != nil {
			h.writeServiceError(w, "Failed to reset store", err)
			return
		}
	}
	if err := factory.Seed(ctx, ds, h.Store); err != nil {
		h.writeServiceError(w, "Failed to load dataset", err)
		return
	}

	summary := DatasetSummaryDTO{
		Company:        ds.Company.ID,
		SurchargePlans: len(ds.SurchargePlans),
		Services:       len(ds.Services),
		Workers:        len(ds.Workers),
		Contracts:      len(ds.Contracts),
		Events:         len(ds.Events),
		Holidays:       len(ds.Holidays),
		Distances:      len(ds.Distances),
		Reset:          reset,
	}
	h.logger.Info("dataset loaded",
		zap.String("company", summary.Company),
		zap.Int("workers", summary.Workers),
		zap.Int("events", summary.Events),
		zap.Bool("reset", reset),
	)
	writeJSON(w, http.StatusCreated, summary)
}
