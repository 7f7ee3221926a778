package pay

import (
	"context"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// =============================================================================
// SOURCES - What the batch service reads
// =============================================================================

type WorkerSource interface {
	ListWorkers(ctx context.Context) ([]planning.Worker, error)
}

type ContractSource interface {
	ListContracts(ctx context.Context, workerID string) ([]planning.Contract, error)
}

// EventSource returns the paid events of a worker overlapping period,
// worked events grouped by day.
type EventSource interface {
	ListWorkerEvents(ctx context.Context, workerID string, period generic.Period) (planning.WorkerEvents, error)
}

type CompanySource interface {
	GetCompany(ctx context.Context) (planning.Company, error)
}

type ServiceSource interface {
	ListServices(ctx context.Context) (planning.Services, error)
}

type PlanSource interface {
	ListSurchargePlans(ctx context.Context) (surcharge.Plans, error)
}

// DistanceSource returns the stored distance matrix used to seed a batch cache.
type DistanceSource interface {
	ListDistances(ctx context.Context) ([]transport.Entry, error)
}

// Source is everything a batch run reads.
type Source interface {
	WorkerSource
	ContractSource
	EventSource
	CompanySource
	ServiceSource
	PlanSource
	DistanceSource
}

// =============================================================================
// REPOSITORY - Where pay records are kept
// =============================================================================

// Repository stores pay records. Find methods return generic.ErrPayNotFound
// when nothing matches; saves return generic.ErrDuplicatePay when a record
// already exists for the worker and month.
type Repository interface {
	SavePays(ctx context.Context, records []Record) error
	SaveFinalPays(ctx context.Context, records []FinalRecord) error
	FindPay(ctx context.Context, workerID, month string) (*Record, error)
	FindFinalPay(ctx context.Context, workerID, month string) (*FinalRecord, error)
	ListPays(ctx context.Context, month string) ([]Record, error)
	ListFinalPays(ctx context.Context, month string) ([]FinalRecord, error)
}
