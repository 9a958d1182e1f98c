package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/route"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/estimator"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/mapview"
)

var (
	cdmx = geo.Bounds{North: 19.5928, South: 19.1223, East: -98.9400, West: -99.3643}

	zocalo     = geo.GeoPoint{Lat: 19.4326, Lng: -99.1332}
	santaFe    = geo.GeoPoint{Lat: 19.3598, Lng: -99.2770}
	coyoacan   = geo.GeoPoint{Lat: 19.3500, Lng: -99.1620}
	queretaro  = geo.GeoPoint{Lat: 20.5888, Lng: -100.3899}
	settleTime = 2 * time.Second
)

// coordResolver answers with a fixed label per point.
type coordResolver struct{}

func (coordResolver) Resolve(_ context.Context, p geo.GeoPoint) string {
	return "addr " + p.String()
}

// gatedResolver blocks each resolution until the test releases it.
type gatedResolver struct {
	mu    sync.Mutex
	gates map[geo.GeoPoint]chan string
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{gates: make(map[geo.GeoPoint]chan string)}
}

func (g *gatedResolver) gate(p geo.GeoPoint) chan string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[p]
	if !ok {
		ch = make(chan string, 1)
		g.gates[p] = ch
	}
	return ch
}

func (g *gatedResolver) Resolve(ctx context.Context, p geo.GeoPoint) string {
	select {
	case addr := <-g.gate(p):
		return addr
	case <-ctx.Done():
		return p.String()
	}
}

func (g *gatedResolver) release(p geo.GeoPoint, addr string) {
	g.gate(p) <- addr
}

// scriptedEstimator returns canned estimates or errors in order, then falls
// back to the haversine estimate.
type scriptedEstimator struct {
	mu     sync.Mutex
	script []func() (estimator.Estimate, error)
	calls  int
}

func (e *scriptedEstimator) Estimate(ctx context.Context, o, d geo.GeoPoint) (estimator.Estimate, error) {
	e.mu.Lock()
	e.calls++
	var next func() (estimator.Estimate, error)
	if len(e.script) > 0 {
		next, e.script = e.script[0], e.script[1:]
	}
	e.mu.Unlock()
	if next != nil {
		return next()
	}
	h, _ := estimator.NewHaversineEstimator(40)
	return h.Estimate(ctx, o, d)
}

func (e *scriptedEstimator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []QuoteSubmission
	err  error
}

func (r *recordingSubmitter) SubmitQuote(_ context.Context, sub QuoteSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.subs = append(r.subs, sub)
	return nil
}

type fixture struct {
	session   *Session
	estimator *scriptedEstimator
	submitter *recordingSubmitter
}

func newFixture(t *testing.T, resolver AddressResolver) *fixture {
	t.Helper()
	engine, err := quote.NewEngine(quote.NewStandardPricingStrategy(), quote.DefaultRateCard())
	require.NoError(t, err)

	f := &fixture{estimator: &scriptedEstimator{}, submitter: &recordingSubmitter{}}
	f.session = NewSession(uuid.New(), cdmx, mapview.NewCanvas(zocalo, 11), Dependencies{
		Resolver:  resolver,
		Estimator: f.estimator,
		Engine:    engine,
		Submitter: f.submitter,
	}, zap.NewNop())
	t.Cleanup(f.session.Teardown)
	return f
}

func (f *fixture) settle(t *testing.T) SessionSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), settleTime)
	defer cancel()
	require.NoError(t, f.session.Settle(ctx))
	return f.session.Snapshot()
}

func strPtr(s string) *string { return &s }

func layersOf(v mapview.View, kind mapview.LayerKind) []mapview.Layer {
	var out []mapview.Layer
	for _, l := range v.Layers {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

func daytime(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.UpdateForm(FormInput{Time: strPtr("14:00")}))
}

func TestSession_ThreeClickCycle(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)

	// Click 1: origin.
	require.NoError(t, f.session.OnMapClick(zocalo))
	snap := f.settle(t)
	assert.Equal(t, route.StateOriginPlaced, snap.State)
	assert.Len(t, layersOf(snap.Map, mapview.KindMarker), 1)
	assert.Equal(t, "19.4326,-99.1332", snap.Form.OriginCoords)
	assert.Equal(t, "addr 19.4326,-99.1332", snap.Form.Origin)
	require.NotNil(t, snap.Route.OriginAddress)
	assert.Nil(t, snap.Quote)

	// Click 2: destination, line and quote.
	require.NoError(t, f.session.OnMapClick(santaFe))
	snap = f.settle(t)
	assert.Equal(t, route.StateRoutePlaced, snap.State)
	assert.Len(t, layersOf(snap.Map, mapview.KindMarker), 2)
	lines := layersOf(snap.Map, mapview.KindPolyline)
	require.Len(t, lines, 1)
	assert.Equal(t, []geo.GeoPoint{zocalo, santaFe}, lines[0].Path)
	require.NotNil(t, snap.Map.Viewport)
	assert.Equal(t, santaFe.Lat, snap.Map.Viewport.South)

	require.NotNil(t, snap.Route.DistanceKm)
	assert.InDelta(t, 17.12, *snap.Route.DistanceKm, 0.01)
	require.NotNil(t, snap.EstimatedTime)
	assert.Equal(t, 26.0, *snap.EstimatedTime)

	windows := layersOf(snap.Map, mapview.KindInfoWindow)
	require.Len(t, windows, 1)
	assert.Equal(t, "Tiempo estimado: 26 min", windows[0].Content)
	leg, _ := geo.BoundsOf(zocalo, santaFe)
	assert.Equal(t, leg.Center(), *windows[0].Position)

	require.NotNil(t, snap.Quote)
	assert.Equal(t, int64(1), snap.Quote.Hours)
	assert.Equal(t, int64(1500), snap.Quote.BasePrice)
	assert.Equal(t, int64(800), snap.Quote.ServiceCharge)
	assert.Equal(t, int64(0), snap.Quote.NightCharge)
	assert.Equal(t, int64(2300), snap.Quote.Total)

	// Click 3: reset, then the new point becomes the origin.
	require.NoError(t, f.session.OnMapClick(coyoacan))
	snap = f.settle(t)
	assert.Equal(t, route.StateOriginPlaced, snap.State)
	markers := layersOf(snap.Map, mapview.KindMarker)
	require.Len(t, markers, 1)
	assert.Equal(t, coyoacan, *markers[0].Position)
	assert.Empty(t, layersOf(snap.Map, mapview.KindPolyline))
	assert.Empty(t, layersOf(snap.Map, mapview.KindInfoWindow))
	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.EstimatedTime)
	assert.Nil(t, snap.Route.Destination)
	assert.Empty(t, snap.Form.DestinationCoords)
	assert.Equal(t, coyoacan, *snap.Route.Origin)
}

func TestSession_ClickOutsideServiceArea(t *testing.T) {
	f := newFixture(t, coordResolver{})
	require.NoError(t, f.session.OnMapClick(zocalo))
	before := f.settle(t)

	err := f.session.OnMapClick(queretaro)
	assert.ErrorIs(t, err, ErrOutsideServiceArea)

	after := f.settle(t)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Route, after.Route)
	assert.Len(t, layersOf(after.Map, mapview.KindMarker), 1)
	require.Len(t, after.Map.Warnings, 1)
	assert.Contains(t, after.Map.Warnings[0].Message, "fuera del área de servicio")
}

func TestSession_StaleAddressIsDiscarded(t *testing.T) {
	resolver := newGatedResolver()
	f := newFixture(t, resolver)

	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	require.NoError(t, f.session.OnMapClick(coyoacan))

	// The first origin resolves after the reset and must not land on the new origin.
	resolver.release(zocalo, "Zócalo")
	resolver.release(santaFe, "Santa Fe")
	resolver.release(coyoacan, "Coyoacán")
	snap := f.settle(t)

	require.NotNil(t, snap.Route.OriginAddress)
	assert.Equal(t, "Coyoacán", *snap.Route.OriginAddress)
	assert.Equal(t, "Coyoacán", snap.Form.Origin)
	assert.Nil(t, snap.Route.DestinationAddress)
	assert.Empty(t, snap.Form.Destination)
}

func TestSession_ConcurrentResolutionsWriteOwnSlot(t *testing.T) {
	resolver := newGatedResolver()
	f := newFixture(t, resolver)

	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))

	// Resolve out of order.
	resolver.release(santaFe, "Santa Fe")
	resolver.release(zocalo, "Zócalo")
	snap := f.settle(t)

	assert.Equal(t, "Zócalo", *snap.Route.OriginAddress)
	assert.Equal(t, "Santa Fe", *snap.Route.DestinationAddress)
	assert.Equal(t, "Zócalo", snap.Form.Origin)
	assert.Equal(t, "Santa Fe", snap.Form.Destination)
}

func TestSession_ManualSelectionMode(t *testing.T) {
	f := newFixture(t, coordResolver{})
	require.NoError(t, f.session.SetSelectionMode(route.SelectionOrigin))

	require.NoError(t, f.session.OnMapClick(zocalo))
	snap := f.settle(t)
	assert.Equal(t, route.SelectionDestination, snap.SelectionMode)

	require.NoError(t, f.session.OnMapClick(santaFe))
	snap = f.settle(t)
	assert.Equal(t, route.StateRoutePlaced, snap.State)

	// In destination mode another click replaces the destination instead of resetting.
	require.NoError(t, f.session.OnMapClick(coyoacan))
	snap = f.settle(t)
	assert.Equal(t, route.StateRoutePlaced, snap.State)
	assert.Equal(t, zocalo, *snap.Route.Origin)
	assert.Equal(t, coyoacan, *snap.Route.Destination)
	assert.Len(t, layersOf(snap.Map, mapview.KindMarker), 2)
	assert.Len(t, layersOf(snap.Map, mapview.KindPolyline), 1)
	assert.Equal(t, 2, f.estimator.callCount())

	assert.Error(t, f.session.SetSelectionMode("sideways"))
}

func TestSession_ClearOneSlot(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)
	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	snap := f.settle(t)
	require.NotNil(t, snap.Quote)

	require.NoError(t, f.session.Clear(route.SlotOrigin))
	snap = f.settle(t)

	assert.Equal(t, route.StateDestinationPlaced, snap.State)
	assert.Nil(t, snap.Route.Origin)
	assert.Empty(t, snap.Form.Origin)
	assert.Empty(t, snap.Form.OriginCoords)
	assert.Equal(t, santaFe, *snap.Route.Destination)
	assert.NotEmpty(t, snap.Form.DestinationCoords)
	markers := layersOf(snap.Map, mapview.KindMarker)
	require.Len(t, markers, 1)
	assert.Equal(t, santaFe, *markers[0].Position)
	assert.Empty(t, layersOf(snap.Map, mapview.KindPolyline))
	assert.Empty(t, layersOf(snap.Map, mapview.KindInfoWindow))
	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.EstimatedTime)

	// The next auto click fills the empty origin and rebuilds the route.
	require.NoError(t, f.session.OnMapClick(coyoacan))
	snap = f.settle(t)
	assert.Equal(t, route.StateRoutePlaced, snap.State)
	assert.NotNil(t, snap.Quote)

	assert.Error(t, f.session.Clear("middle"))
}

func TestSession_Reset(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)
	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	f.settle(t)

	require.NoError(t, f.session.Reset())
	snap := f.settle(t)
	assert.Equal(t, route.StateEmpty, snap.State)
	assert.Empty(t, snap.Map.Layers)
	assert.Nil(t, snap.Quote)
}

func TestSession_CalculateQuoteValidation(t *testing.T) {
	f := newFixture(t, coordResolver{})

	_, err := f.session.CalculateQuote(nil)
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{quote.FieldTime, quote.FieldDuration}, appErr.Fields)

	snap := f.session.Snapshot()
	assert.Equal(t, []string{quote.FieldDuration, quote.FieldTime}, snap.Touched)
	assert.Equal(t, []string{quote.FieldTime}, snap.InvalidFields)
	assert.Nil(t, snap.Quote)
}

func TestSession_ValidationKeepsPriorQuote(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)

	duration := 90.0
	res, err := f.session.CalculateQuote(&duration)
	require.NoError(t, err)
	assert.Equal(t, int64(3800), res.Total)

	require.NoError(t, f.session.UpdateForm(FormInput{ServiceType: strPtr("")}))
	_, err = f.session.CalculateQuote(&duration)
	require.Error(t, err)

	require.NoError(t, f.session.UpdateForm(FormInput{ServiceType: strPtr("helicopter")}))
	_, err = f.session.CalculateQuote(&duration)
	require.Error(t, err)

	snap := f.session.Snapshot()
	require.NotNil(t, snap.Quote)
	assert.Equal(t, int64(3800), snap.Quote.Total)
	assert.Contains(t, snap.Touched, quote.FieldServiceType)
}

func TestSession_NightAndVehicleSurcharges(t *testing.T) {
	f := newFixture(t, coordResolver{})
	require.NoError(t, f.session.UpdateForm(FormInput{
		ServiceType: strPtr("large"),
		Date:        strPtr("2026-10-18"),
		Time:        strPtr("23:00"),
	}))

	duration := 14.0
	res, err := f.session.CalculateQuote(&duration)
	require.NoError(t, err)
	assert.Positive(t, res.NightCharge)
	assert.Positive(t, res.DistanceCharge)
	assert.Equal(t, res.BasePrice+res.ServiceCharge+res.NightCharge+res.DistanceCharge, res.Total)
}

func TestSession_CalculateQuoteStartsEstimation(t *testing.T) {
	f := newFixture(t, coordResolver{})
	f.estimator.script = []func() (estimator.Estimate, error){
		func() (estimator.Estimate, error) { return estimator.Estimate{}, errors.New("provider down") },
	}

	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	snap := f.settle(t)
	assert.Nil(t, snap.Route.DurationMinutes, "failed estimation leaves the route uncomputed")
	assert.Nil(t, snap.Quote)

	daytime(t, f.session)
	_, err := f.session.CalculateQuote(nil)
	require.Error(t, err)

	snap = f.settle(t)
	assert.Equal(t, 2, f.estimator.callCount())
	require.NotNil(t, snap.Quote)
	assert.Equal(t, int64(2300), snap.Quote.Total)
}

func TestSession_ProviderEstimate(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)
	path := []geo.GeoPoint{zocalo, {Lat: 19.41, Lng: -99.18}, santaFe}
	f.estimator.script = []func() (estimator.Estimate, error){
		func() (estimator.Estimate, error) {
			return estimator.Estimate{
				DistanceKm:      geo.Distance(zocalo, santaFe),
				DurationMinutes: 75,
				Source:          estimator.StrategyDirections,
				Path:            path,
				StartAddress:    "Zócalo, Centro, CDMX",
				EndAddress:      "Santa Fe, CDMX",
				DurationText:    "1 h 15 min",
			}, nil
		},
	}

	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	snap := f.settle(t)

	lines := layersOf(snap.Map, mapview.KindPolyline)
	require.Len(t, lines, 1)
	assert.Equal(t, path, lines[0].Path)
	assert.Equal(t, "Tiempo estimado: 1 h 15 min", layersOf(snap.Map, mapview.KindInfoWindow)[0].Content)
	assert.Equal(t, "Zócalo, Centro, CDMX", snap.Form.Origin)
	assert.Equal(t, "Santa Fe, CDMX", snap.Form.Destination)
	require.NotNil(t, snap.Quote)
	assert.Equal(t, int64(2), snap.Quote.Hours)
	assert.Equal(t, int64(3800), snap.Quote.Total)
}

func TestSession_ProviderAddressesReplaceGeocodedText(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)
	release := make(chan struct{})
	f.estimator.script = []func() (estimator.Estimate, error){
		func() (estimator.Estimate, error) {
			<-release
			return estimator.Estimate{
				DistanceKm:      geo.Distance(zocalo, santaFe),
				DurationMinutes: 30,
				Source:          estimator.StrategyDirections,
				Path:            []geo.GeoPoint{zocalo, santaFe},
				StartAddress:    "Zócalo, Centro, CDMX",
				EndAddress:      "Santa Fe, CDMX",
			}, nil
		},
	}

	require.NoError(t, f.session.OnMapClick(zocalo))
	f.settle(t)
	require.NoError(t, f.session.OnMapClick(santaFe))
	require.Eventually(t, func() bool {
		return f.session.Snapshot().Route.DestinationAddress != nil
	}, settleTime, 5*time.Millisecond, "geocode lands before the estimate")
	close(release)
	snap := f.settle(t)

	require.NotNil(t, snap.Route.OriginAddress)
	require.NotNil(t, snap.Route.DestinationAddress)
	assert.Equal(t, "Zócalo, Centro, CDMX", snap.Form.Origin)
	assert.Equal(t, "Zócalo, Centro, CDMX", *snap.Route.OriginAddress)
	assert.Equal(t, "Santa Fe, CDMX", snap.Form.Destination)
	assert.Equal(t, "Santa Fe, CDMX", *snap.Route.DestinationAddress)

	submitted, err := f.session.RequestQuote(context.Background())
	require.NoError(t, err)
	require.True(t, submitted)
	require.Len(t, f.submitter.subs, 1)
	assert.Equal(t, "Zócalo, Centro, CDMX", f.submitter.subs[0].OriginAddress)
	assert.Equal(t, "Santa Fe, CDMX", f.submitter.subs[0].DestinationAddress)
}

func TestSession_RequestQuote(t *testing.T) {
	f := newFixture(t, coordResolver{})

	submitted, err := f.session.RequestQuote(context.Background())
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Empty(t, f.submitter.subs)

	daytime(t, f.session)
	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	f.settle(t)

	submitted, err = f.session.RequestQuote(context.Background())
	require.NoError(t, err)
	assert.True(t, submitted)
	require.Len(t, f.submitter.subs, 1)

	sub := f.submitter.subs[0]
	assert.Equal(t, f.session.ID(), sub.SessionID)
	assert.Equal(t, zocalo, *sub.Origin)
	assert.Equal(t, "addr 19.3598,-99.277", sub.DestinationAddress)
	assert.Equal(t, 26.0, sub.DurationMinutes)
	assert.Equal(t, int64(2300), sub.Quote.Total)
	assert.Equal(t, "14:00", sub.Time)
}

func TestSession_RequestQuoteSubmitError(t *testing.T) {
	f := newFixture(t, coordResolver{})
	f.submitter.err = errors.New("broker down")
	daytime(t, f.session)
	duration := 30.0
	_, err := f.session.CalculateQuote(&duration)
	require.NoError(t, err)

	submitted, err := f.session.RequestQuote(context.Background())
	require.Error(t, err)
	assert.False(t, submitted)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnavailable, appErr.Code)
	assert.ErrorIs(t, err, f.submitter.err)
}

func TestSession_ZeroDurationUsesRoute(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)
	zero := 0.0

	_, err := f.session.CalculateQuote(&zero)
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Fields, quote.FieldDuration)

	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))
	f.settle(t)

	res, err := f.session.CalculateQuote(&zero)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Hours)
	assert.Equal(t, int64(2300), res.Total)
}

func TestSession_Teardown(t *testing.T) {
	resolver := newGatedResolver()
	f := newFixture(t, resolver)
	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(santaFe))

	f.session.Teardown()
	snap := f.settle(t)
	assert.Empty(t, snap.Map.Layers)

	assert.ErrorIs(t, f.session.OnMapClick(coyoacan), ErrSessionClosed)
	assert.ErrorIs(t, f.session.Reset(), ErrSessionClosed)
	_, err := f.session.RequestQuote(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_ZeroLengthRoute(t *testing.T) {
	f := newFixture(t, coordResolver{})
	daytime(t, f.session)
	require.NoError(t, f.session.OnMapClick(zocalo))
	require.NoError(t, f.session.OnMapClick(zocalo))
	snap := f.settle(t)

	require.NotNil(t, snap.EstimatedTime)
	assert.Zero(t, *snap.EstimatedTime)
	require.NotNil(t, snap.Quote)
	assert.Equal(t, int64(0), snap.Quote.Hours)
	assert.Equal(t, int64(800), snap.Quote.Total)
}
