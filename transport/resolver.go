/*
Package transport resolves the paid travel time between two consecutive events
of a worker's day.

PURPOSE:
  Auxiliaries are paid for the time spent travelling from one customer to the
  next. The resolver looks the route up in the batch distance cache (falling
  back to a distance provider), then decides whether to pay the estimated
  travel time or the break actually observed between the two events.

SELECTION RULE:
  break    = minutes between the previous end and the current start
  transport = estimated travel minutes

  pay transport  when transport > break               (break too short)
             or  when break > transport + 15          (idle padding)
  pay break      otherwise

  Mileage is only paid to workers travelling with their own car.

FAILURE MODE:
  Provider errors never reach the caller: the route resolves to zero and a
  zeroed placeholder is cached so the run does not retry it.

SEE ALSO:
  - cache.go: Batch distance cache
  - provider.go: Distance providers
  - hours/aggregator.go: Caller
*/
package transport

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
)

// IdleBreakMargin is how many minutes a break may exceed the travel estimate
// before it is treated as idle time and the estimate is paid instead.
const IdleBreakMargin = 15

var (
	idleBreakMargin = decimal.NewFromInt(IdleBreakMargin)
	thousand        = decimal.NewFromInt(1000)
	sixty           = decimal.NewFromInt(60)
)

// Info is a resolved route: distance in km, duration in minutes.
type Info struct {
	Distance decimal.Decimal
	Duration decimal.Decimal
}

func (e Entry) info() Info {
	return Info{
		Distance: decimal.NewFromInt(e.Distance).Div(thousand),
		Duration: decimal.NewFromInt(e.Duration).Div(sixty),
	}
}

// EntryStore persists distance entries resolved by a provider.
type EntryStore interface {
	SaveDistance(ctx context.Context, e Entry) error
}

// Resolver computes paid transport. Provider and Store are optional.
type Resolver struct {
	Provider Provider
	Store    EntryStore
	Logger   *zap.Logger
	// Timeout bounds each provider call; zero means the caller's context only.
	Timeout time.Duration
}

func NewResolver(provider Provider, store EntryStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{Provider: provider, Store: store, Logger: logger.Named("transport")}
}

// ModeFor maps a worker's transport type to a provider travel mode.
func ModeFor(t planning.TransportType) (Mode, bool) {
	switch t {
	case planning.TransportPublic:
		return ModeTransit, true
	case planning.TransportPrivate, planning.TransportCompany:
		return ModeDriving, true
	default:
		return "", false
	}
}

// SelectPaidDuration applies the break/transport selection rule. Both values
// are minutes; the result is never negative.
func SelectPaidDuration(breakMinutes, transportMinutes decimal.Decimal) decimal.Decimal {
	breakTooShort := transportMinutes.GreaterThan(breakMinutes)
	idleBreak := breakMinutes.GreaterThan(transportMinutes.Add(idleBreakMargin))
	if breakTooShort || idleBreak {
		return generic.NonNegative(transportMinutes)
	}
	return generic.NonNegative(breakMinutes)
}

// PaidTransport returns the paid travel before event, coming from prev.
// prev is nil for the first event of the day.
func (r *Resolver) PaidTransport(ctx context.Context, cache *Cache, prev *planning.Event, event planning.Event, worker planning.Worker) planning.PaidTransport {
	none := planning.PaidTransport{Duration: decimal.Zero, Distance: decimal.Zero}
	if prev == nil || prev.HasFixedService || event.HasFixedService {
		return none
	}
	if prev.Address.IsZero() || event.Address.IsZero() {
		return none
	}
	mode, ok := ModeFor(worker.TransportInvoice.Type)
	if !ok {
		return none
	}

	route := r.Info(ctx, cache, *prev.Address, *event.Address, mode)
	breakMinutes := generic.Minutes(generic.MinutesBetween(prev.EndDate, event.StartDate))

	paid := planning.PaidTransport{
		Duration: SelectPaidDuration(breakMinutes, route.Duration),
		Distance: decimal.Zero,
	}
	if worker.TransportInvoice.Type == planning.TransportPrivate {
		paid.Distance = route.Distance
	}
	return paid
}

// Info resolves a route through the cache, then the provider on a miss.
func (r *Resolver) Info(ctx context.Context, cache *Cache, origin, destination planning.Address, mode Mode) Info {
	if cache == nil {
		cache = NewCache()
	}
	if e, ok := cache.Find(origin.FullAddress, destination.FullAddress, mode); ok {
		return e.info()
	}

	key := flightKey(origin.FullAddress, destination.FullAddress, mode)
	v, _, _ := cache.flight.Do(key, func() (interface{}, error) {
		if e, ok := cache.Find(origin.FullAddress, destination.FullAddress, mode); ok {
			return e, nil
		}
		e := r.lookup(ctx, origin, destination, mode)
		cache.Add(e)
		return e, nil
	})
	return v.(Entry).info()
}

func (r *Resolver) lookup(ctx context.Context, origin, destination planning.Address, mode Mode) Entry {
	placeholder := Entry{Origins: origin.FullAddress, Destinations: destination.FullAddress, Mode: mode}
	if r.Provider == nil {
		return placeholder
	}
	logger := r.logger()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	e, err := r.Provider.Route(ctx, RouteQuery{Origin: origin, Destination: destination, Mode: mode})
	if err != nil {
		logger.Warn("distance lookup failed, using zero",
			zap.String("origins", origin.FullAddress),
			zap.String("destinations", destination.FullAddress),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		return placeholder
	}
	e.Origins, e.Destinations, e.Mode = origin.FullAddress, destination.FullAddress, mode

	if r.Store != nil {
		if err := r.Store.SaveDistance(ctx, e); err != nil {
			logger.Warn("failed to store distance", zap.Error(err))
		}
	}
	return e
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
