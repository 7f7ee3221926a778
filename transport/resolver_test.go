package transport_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/transport"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func at(day, hour, minute int) time.Time {
	return time.Date(2019, time.May, day, hour, minute, 0, 0, time.UTC)
}

func addr(s string) *planning.Address { return &planning.Address{FullAddress: s} }

func intervention(id string, start, end time.Time, address *planning.Address) planning.Event {
	return planning.Event{ID: id, Type: planning.EventIntervention, StartDate: start, EndDate: end, Address: address}
}

func privateWorker() planning.Worker {
	return planning.Worker{ID: "aux-1", TransportInvoice: planning.TransportInvoice{Type: planning.TransportPrivate}}
}

// countingProvider returns a fixed route and counts calls.
type countingProvider struct {
	calls    atomic.Int32
	entry    transport.Entry
	err      error
	blockFor time.Duration
}

func (p *countingProvider) Route(_ context.Context, _ transport.RouteQuery) (transport.Entry, error) {
	p.calls.Add(1)
	if p.blockFor > 0 {
		time.Sleep(p.blockFor)
	}
	return p.entry, p.err
}

type recordingStore struct {
	mu    sync.Mutex
	saved []transport.Entry
}

func (s *recordingStore) SaveDistance(_ context.Context, e transport.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, e)
	return nil
}

func minutes(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// =============================================================================
// SELECTION RULE
// =============================================================================

func TestSelectPaidDuration(t *testing.T) {
	tests := []struct {
		name      string
		breakMin  int64
		transport int64
		want      int64
	}{
		{"break covers travel within margin", 70, 60, 70},
		{"break shorter than travel", 20, 30, 30},
		{"idle break beyond margin", 90, 60, 60},
		{"break exactly at margin", 75, 60, 75},
		{"equal break and travel", 45, 45, 45},
		{"overlapping events", -30, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transport.SelectPaidDuration(minutes(tt.breakMin), minutes(tt.transport))
			assert.True(t, got.Equal(minutes(tt.want)), "expected %d, got %s", tt.want, got)
		})
	}
}

func TestSelectPaidDuration_NeverNegative(t *testing.T) {
	got := transport.SelectPaidDuration(minutes(-20), minutes(-5))
	assert.True(t, got.IsZero())
}

// =============================================================================
// PAID TRANSPORT
// =============================================================================

func TestPaidTransport_BreakWins(t *testing.T) {
	// GIVEN: previous event ends 15:00, current starts 16:10, travel is 60 minutes
	// WHEN: resolving paid transport
	// THEN: the 70-minute break is paid, mileage comes from the route

	provider := &countingProvider{entry: transport.Entry{Distance: 10000, Duration: 3600}}
	r := transport.NewResolver(provider, nil, zap.NewNop())
	cache := transport.NewCache()

	prev := intervention("ev-1", at(6, 14, 0), at(6, 15, 0), addr("1 rue A"))
	cur := intervention("ev-2", at(6, 16, 10), at(6, 17, 0), addr("2 rue B"))

	paid := r.PaidTransport(context.Background(), cache, &prev, cur, privateWorker())

	assert.True(t, paid.Duration.Equal(minutes(70)), "got %s", paid.Duration)
	assert.True(t, paid.Distance.Equal(decimal.NewFromInt(10)), "got %s", paid.Distance)
}

func TestPaidTransport_NoPreviousEvent(t *testing.T) {
	provider := &countingProvider{entry: transport.Entry{Distance: 10000, Duration: 3600}}
	r := transport.NewResolver(provider, nil, zap.NewNop())

	cur := intervention("ev-2", at(6, 16, 10), at(6, 17, 0), addr("2 rue B"))
	paid := r.PaidTransport(context.Background(), transport.NewCache(), nil, cur, privateWorker())

	assert.True(t, paid.Duration.IsZero())
	assert.True(t, paid.Distance.IsZero())
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestPaidTransport_ZeroCases(t *testing.T) {
	prev := intervention("ev-1", at(6, 14, 0), at(6, 15, 0), addr("1 rue A"))
	cur := intervention("ev-2", at(6, 16, 10), at(6, 17, 0), addr("2 rue B"))

	fixedPrev := prev
	fixedPrev.HasFixedService = true
	fixedCur := cur
	fixedCur.HasFixedService = true
	noAddress := cur
	noAddress.Address = nil
	emptyAddress := prev
	emptyAddress.Address = &planning.Address{}

	tests := []struct {
		name   string
		prev   planning.Event
		cur    planning.Event
		worker planning.Worker
	}{
		{"previous has fixed service", fixedPrev, cur, privateWorker()},
		{"current has fixed service", prev, fixedCur, privateWorker()},
		{"current without address", prev, noAddress, privateWorker()},
		{"previous with empty address", emptyAddress, cur, privateWorker()},
		{"no transport mode", prev, cur, planning.Worker{ID: "aux-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &countingProvider{entry: transport.Entry{Distance: 10000, Duration: 3600}}
			r := transport.NewResolver(provider, nil, zap.NewNop())
			prev := tt.prev

			paid := r.PaidTransport(context.Background(), transport.NewCache(), &prev, tt.cur, tt.worker)

			assert.True(t, paid.Duration.IsZero())
			assert.True(t, paid.Distance.IsZero())
			assert.Equal(t, int32(0), provider.calls.Load())
		})
	}
}

func TestPaidTransport_MileageOnlyForPrivateCar(t *testing.T) {
	provider := &countingProvider{entry: transport.Entry{Distance: 5000, Duration: 1200}}
	r := transport.NewResolver(provider, nil, zap.NewNop())
	cache := transport.NewCache()

	prev := intervention("ev-1", at(6, 9, 0), at(6, 10, 0), addr("1 rue A"))
	cur := intervention("ev-2", at(6, 10, 30), at(6, 11, 0), addr("2 rue B"))

	for _, tt := range []planning.TransportType{planning.TransportPublic, planning.TransportCompany} {
		worker := planning.Worker{ID: "aux", TransportInvoice: planning.TransportInvoice{Type: tt}}
		paid := r.PaidTransport(context.Background(), cache, &prev, cur, worker)

		assert.True(t, paid.Duration.Equal(minutes(30)), "%s: got %s", tt, paid.Duration)
		assert.True(t, paid.Distance.IsZero(), "%s: mileage must not be paid", tt)
	}
}

// =============================================================================
// CACHE BEHAVIOUR
// =============================================================================

func TestResolver_CacheHitSkipsProvider(t *testing.T) {
	provider := &countingProvider{entry: transport.Entry{Distance: 999000, Duration: 99999}}
	r := transport.NewResolver(provider, nil, zap.NewNop())
	cache := transport.NewCache(transport.Entry{
		Origins: "1 rue A", Destinations: "2 rue B", Mode: transport.ModeDriving,
		Distance: 2500, Duration: 600,
	})

	info := r.Info(context.Background(), cache, *addr("1 rue A"), *addr("2 rue B"), transport.ModeDriving)

	assert.True(t, info.Distance.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, info.Duration.Equal(minutes(10)))
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestResolver_MissFillsCacheAndStore(t *testing.T) {
	provider := &countingProvider{entry: transport.Entry{Distance: 2500, Duration: 600}}
	store := &recordingStore{}
	r := transport.NewResolver(provider, store, zap.NewNop())
	cache := transport.NewCache()

	for i := 0; i < 3; i++ {
		r.Info(context.Background(), cache, *addr("1 rue A"), *addr("2 rue B"), transport.ModeDriving)
	}

	assert.Equal(t, int32(1), provider.calls.Load())
	require.Equal(t, 1, cache.Len())
	require.Len(t, store.saved, 1)
	assert.Equal(t, "1 rue A", store.saved[0].Origins)
	assert.Equal(t, transport.ModeDriving, store.saved[0].Mode)
}

func TestResolver_ModeIsPartOfKey(t *testing.T) {
	provider := &countingProvider{entry: transport.Entry{Distance: 2500, Duration: 600}}
	r := transport.NewResolver(provider, nil, zap.NewNop())
	cache := transport.NewCache()

	r.Info(context.Background(), cache, *addr("A"), *addr("B"), transport.ModeDriving)
	r.Info(context.Background(), cache, *addr("A"), *addr("B"), transport.ModeTransit)

	assert.Equal(t, int32(2), provider.calls.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestResolver_ProviderFailureResolvesToZero(t *testing.T) {
	// GIVEN: a provider that always fails
	// WHEN: resolving the same route twice
	// THEN: zero is returned, a placeholder is cached, nothing is stored

	provider := &countingProvider{err: generic.ErrDistanceUnavailable}
	store := &recordingStore{}
	r := transport.NewResolver(provider, store, zap.NewNop())
	cache := transport.NewCache()

	first := r.Info(context.Background(), cache, *addr("A"), *addr("B"), transport.ModeDriving)
	second := r.Info(context.Background(), cache, *addr("A"), *addr("B"), transport.ModeDriving)

	assert.True(t, first.Duration.IsZero())
	assert.True(t, second.Distance.IsZero())
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, 1, cache.Len())
	assert.Empty(t, store.saved)
}

func TestResolver_NoProvider(t *testing.T) {
	r := transport.NewResolver(nil, nil, nil)
	info := r.Info(context.Background(), nil, *addr("A"), *addr("B"), transport.ModeDriving)
	assert.True(t, info.Duration.IsZero())
}

func TestResolver_ConcurrentMissesShareLookup(t *testing.T) {
	provider := &countingProvider{entry: transport.Entry{Distance: 1000, Duration: 60}, blockFor: 20 * time.Millisecond}
	r := transport.NewResolver(provider, nil, zap.NewNop())
	cache := transport.NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info := r.Info(context.Background(), cache, *addr("A"), *addr("B"), transport.ModeDriving)
			assert.True(t, info.Duration.Equal(minutes(1)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestResolver_TimeoutResolvesToZero(t *testing.T) {
	slow := transport.ProviderFunc(func(ctx context.Context, _ transport.RouteQuery) (transport.Entry, error) {
		<-ctx.Done()
		return transport.Entry{}, ctx.Err()
	})
	r := transport.NewResolver(slow, nil, zap.NewNop())
	r.Timeout = 10 * time.Millisecond

	info := r.Info(context.Background(), transport.NewCache(), *addr("A"), *addr("B"), transport.ModeDriving)
	assert.True(t, info.Duration.IsZero())
}

// =============================================================================
// PROVIDERS
// =============================================================================

func TestEstimateProvider(t *testing.T) {
	p := transport.NewEstimateProvider()
	origin := planning.Address{FullAddress: "Paris", Lat: 48.8566, Lng: 2.3522}
	dest := planning.Address{FullAddress: "Versailles", Lat: 48.8049, Lng: 2.1204}

	e, err := p.Route(context.Background(), transport.RouteQuery{Origin: origin, Destination: dest, Mode: transport.ModeDriving})
	require.NoError(t, err)

	// ~17.9 km as the crow flies, stretched by 1.3
	assert.InDelta(t, 23300, float64(e.Distance), 600)
	assert.Greater(t, e.Duration, int64(0))

	_, err = p.Route(context.Background(), transport.RouteQuery{Origin: *addr("A"), Destination: dest})
	assert.ErrorIs(t, err, generic.ErrDistanceUnavailable)
}

func TestChain_FirstSuccessWins(t *testing.T) {
	failing := &countingProvider{err: errors.New("boom")}
	ok := &countingProvider{entry: transport.Entry{Distance: 42, Duration: 60}}
	never := &countingProvider{entry: transport.Entry{Distance: 1}}

	e, err := transport.Chain{failing, ok, never}.Route(context.Background(), transport.RouteQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.Distance)
	assert.Equal(t, int32(0), never.calls.Load())

	_, err = transport.Chain{failing}.Route(context.Background(), transport.RouteQuery{})
	assert.Error(t, err)

	_, err = transport.Chain{}.Route(context.Background(), transport.RouteQuery{})
	assert.ErrorIs(t, err, generic.ErrDistanceUnavailable)
}
