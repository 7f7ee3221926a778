/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures wrapping pay records on the wire. Records
  themselves (pay.Record, pay.FinalRecord, pay.WorkingStats) are already
  JSON-ready and are embedded as is.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers
  - *DTO: Plain response items

PERIOD QUERY PARAMETERS:
  month=MM-YYYY                         A calendar month
  startDate=YYYY-MM-DD&endDate=YYYY-MM-DD  An explicit day range
  Dates are read in the handler's location.

SEE ALSO:
  - handlers.go: Uses these types
  - pay/record.go: Record shapes
*/
package api

import (
	"github.com/warp/pay-engine/pay"
)

// =============================================================================
// PAY
// =============================================================================

// PeriodDTO echoes the period a computation ran on.
type PeriodDTO struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Month     string `json:"month,omitempty"`
}

type DraftPayResponse struct {
	Period PeriodDTO    `json:"period"`
	Pays   []pay.Record `json:"pays"`
}

type DraftFinalPayResponse struct {
	Period    PeriodDTO         `json:"period"`
	FinalPays []pay.FinalRecord `json:"finalPays"`
}

type WorkingStatsResponse struct {
	Period PeriodDTO          `json:"period"`
	Mode   pay.StatsMode      `json:"mode"`
	Stats  []pay.WorkingStats `json:"stats"`
}

// SavePaysRequest carries validated draft pays.
type SavePaysRequest struct {
	Pays []pay.Record `json:"pays"`
}

type SaveFinalPaysRequest struct {
	FinalPays []pay.FinalRecord `json:"finalPays"`
}

type SavedResponse struct {
	Saved int `json:"saved"`
}

// =============================================================================
// HOLIDAYS / DATASET
// =============================================================================

// HolidayDTO represents a holiday in API responses.
type HolidayDTO struct {
	ID        string `json:"id,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
	Source    string `json:"source"` // "company" or "calendar"
}

// CreateHolidayRequest is the request to create a holiday.
type CreateHolidayRequest struct {
	CompanyID string `json:"companyId"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// DatasetSummaryDTO counts what a dataset load wrote.
type DatasetSummaryDTO struct {
	Company        string `json:"company"`
	SurchargePlans int    `json:"surchargePlans"`
	Services       int    `json:"services"`
	Workers        int    `json:"workers"`
	Contracts      int    `json:"contracts"`
	Events         int    `json:"events"`
	Holidays       int    `json:"holidays"`
	Distances      int    `json:"distances"`
	Reset          bool   `json:"reset"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
