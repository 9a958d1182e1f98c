package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/route"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/estimator"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/mapview"
)

var (
	// ErrOutsideServiceArea is returned for clicks outside the service bounds.
	ErrOutsideServiceArea = errors.New("point is outside the service area")
	// ErrSessionClosed is returned by every operation after Teardown.
	ErrSessionClosed = errors.New("map session is closed")
)

// Messages shown on the map.
const (
	outsideAreaWarning = "La ubicación seleccionada está fuera del área de servicio"
	estimatedTimeLabel = "Tiempo estimado: "
)

// AddressResolver turns a point into display text and never fails.
type AddressResolver interface {
	Resolve(ctx context.Context, p geo.GeoPoint) string
}

// QuoteSubmitter hands a requested quote to whatever processes it.
type QuoteSubmitter interface {
	SubmitQuote(ctx context.Context, sub QuoteSubmission) error
}

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Resolver  AddressResolver
	Estimator estimator.RouteEstimator
	Engine    *quote.Engine
	Submitter QuoteSubmitter
}

// FormInput is a partial update of the user-entered form fields.
type FormInput struct {
	ServiceType *string `json:"service_type"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
}

// QuoteSubmission is the payload handed off by RequestQuote.
type QuoteSubmission struct {
	ID                 uuid.UUID         `json:"id"`
	SessionID          uuid.UUID         `json:"session_id"`
	Origin             *geo.GeoPoint     `json:"origin,omitempty"`
	Destination        *geo.GeoPoint     `json:"destination,omitempty"`
	OriginAddress      string            `json:"origin_address,omitempty"`
	DestinationAddress string            `json:"destination_address,omitempty"`
	DistanceKm         *float64          `json:"distance_km,omitempty"`
	DurationMinutes    float64           `json:"duration_minutes"`
	ServiceType        string            `json:"service_type"`
	Date               string            `json:"date,omitempty"`
	Time               string            `json:"time"`
	Quote              quote.QuoteResult `json:"quote"`
	RequestedAt        time.Time         `json:"requested_at"`
}

// SessionSnapshot is the read model of a session.
type SessionSnapshot struct {
	ID            uuid.UUID           `json:"id"`
	State         route.MarkerState   `json:"state"`
	SelectionMode route.SelectionMode `json:"selection_mode"`
	Route         route.Snapshot      `json:"route"`
	Form          quote.FormState     `json:"form"`
	Touched       []string            `json:"touched,omitempty"`
	InvalidFields []string            `json:"invalid_fields,omitempty"`
	Quote         *quote.QuoteResult  `json:"quote"`
	EstimatedTime *float64            `json:"estimated_time"`
	Pending       int                 `json:"pending"`
	Map           mapview.View        `json:"map"`
	LastActiveAt  time.Time           `json:"last_active_at"`
}

// Session is one mounted map. Every operation holds the session lock, so
// operations on a session run one at a time. Address resolution and route
// estimation run in goroutines that take the lock again to apply their result,
// and discard it if the placement or pairing they were started for has changed.
type Session struct {
	id     uuid.UUID
	bounds geo.Bounds
	widget mapview.Widget
	deps   Dependencies
	logger *zap.Logger

	mu            sync.Mutex
	route         *route.RouteState
	mode          route.SelectionMode
	form          quote.FormState
	touched       map[string]bool
	result        *quote.QuoteResult
	quotedMinutes float64
	estimatedTime *float64

	slots      map[route.MarkerSlot]route.SlotToken
	markers    map[route.MarkerSlot]*mapview.Layer
	line       *mapview.Layer
	infoWindow *mapview.Layer

	estimating *route.RouteToken
	pending    int
	idle       chan struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	lastActive time.Time
}

// NewSession creates a session drawing on widget and accepting clicks inside bounds.
func NewSession(id uuid.UUID, bounds geo.Bounds, widget mapview.Widget, deps Dependencies, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Session{
		id:         id,
		bounds:     bounds,
		widget:     widget,
		deps:       deps,
		logger:     logger.With(zap.String("session_id", id.String())),
		route:      route.NewRouteState(),
		mode:       route.SelectionAuto,
		form:       quote.FormState{ServiceType: quote.DefaultServiceType},
		touched:    make(map[string]bool),
		slots:      make(map[route.MarkerSlot]route.SlotToken, 2),
		markers:    make(map[route.MarkerSlot]*mapview.Layer, 2),
		idle:       idle,
		ctx:        ctx,
		cancel:     cancel,
		lastActive: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// OnMapClick handles a click at p.
func (s *Session) OnMapClick(p geo.GeoPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}

	if !s.bounds.Contains(p) {
		s.widget.Warn(outsideAreaWarning)
		s.logger.Debug("click outside service area", zap.String("point", p.String()))
		return ErrOutsideServiceArea
	}

	target := route.TargetFor(s.route.State(), s.mode)
	if target.Reset {
		s.resetLocked()
	}
	if err := s.placeLocked(target.Slot, p); err != nil {
		return err
	}

	// In manual mode, picking the origin first moves on to the destination.
	if s.mode == route.SelectionOrigin && target.Slot == route.SlotOrigin {
		if _, ok := s.route.Point(route.SlotDestination); !ok {
			s.mode = route.SelectionDestination
		}
	}
	return nil
}

// SetSelectionMode chooses which slot the next clicks fill.
func (s *Session) SetSelectionMode(mode route.SelectionMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if !mode.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("invalid selection mode: %s", mode), "selection_mode")
	}
	s.mode = mode
	return nil
}

// UpdateForm applies the non-nil fields of in.
func (s *Session) UpdateForm(in FormInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if in.ServiceType != nil {
		s.form.ServiceType = *in.ServiceType
	}
	if in.Date != nil {
		s.form.Date = *in.Date
	}
	if in.Time != nil {
		s.form.Time = *in.Time
	}
	return nil
}

// CalculateQuote prices duration, or the route duration when duration is nil
// or zero.
// On validation failure the offending fields are marked touched and the
// previous quote is kept. When only the duration is missing and both points
// are placed, route estimation is started and the quote follows from it.
func (s *Session) CalculateQuote(duration *float64) (*quote.QuoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	return s.calculateLocked(duration)
}

// Clear removes one slot's marker, address and coordinates, leaving the other slot.
func (s *Session) Clear(slot route.MarkerSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	if err := s.route.Clear(slot); err != nil {
		return domain.NewValidationError(err.Error(), "slot")
	}

	s.removeLayer(&s.line)
	s.removeLayer(&s.infoWindow)
	if marker := s.markers[slot]; marker != nil {
		s.widget.RemoveLayer(marker)
		delete(s.markers, slot)
	}
	s.setSlotFields(slot, "", "")
	s.clearQuoteLocked()
	return nil
}

// Reset clears both slots, every layer, the quote and the estimate.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.resetLocked()
	return nil
}

// RequestQuote submits the current quote. It returns false without side
// effects when no quote has been computed.
func (s *Session) RequestQuote(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if err := s.enter(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if s.result == nil {
		s.mu.Unlock()
		return false, nil
	}
	sub := s.submissionLocked()
	s.mu.Unlock()

	if err := s.deps.Submitter.SubmitQuote(ctx, sub); err != nil {
		s.logger.Warn("quote submission failed",
			zap.String("submission_id", sub.ID.String()),
			zap.Error(err),
		)
		return false, domain.NewUnavailableError("quote request could not be sent, try again", err)
	}
	s.logger.Info("quote requested",
		zap.String("submission_id", sub.ID.String()),
		zap.Int64("total", sub.Quote.Total),
	)
	return true, nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		ID:            s.id,
		State:         s.route.State(),
		SelectionMode: s.mode,
		Route:         s.route.Snapshot(),
		Form:          s.form,
		Pending:       s.pending,
		Map:           s.widget.View(),
		LastActiveAt:  s.lastActive,
	}
	if s.result != nil {
		r := *s.result
		snap.Quote = &r
	}
	if s.estimatedTime != nil {
		t := *s.estimatedTime
		snap.EstimatedTime = &t
	}
	for field := range s.touched {
		snap.Touched = append(snap.Touched, field)
	}
	sort.Strings(snap.Touched)
	for _, field := range s.form.Validate() {
		if s.touched[field] {
			snap.InvalidFields = append(snap.InvalidFields, field)
		}
	}
	return snap
}

// Settle blocks until no address resolution or route estimation is in flight.
func (s *Session) Settle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Teardown cancels in-flight work and removes every layer. Later operations
// return ErrSessionClosed.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()

	for slot, marker := range s.markers {
		s.widget.RemoveLayer(marker)
		delete(s.markers, slot)
	}
	s.removeLayer(&s.line)
	s.removeLayer(&s.infoWindow)
}

// LastActive returns the time of the last operation.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) enter() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = time.Now()
	return nil
}

func (s *Session) placeLocked(slot route.MarkerSlot, p geo.GeoPoint) error {
	tok, err := s.route.Place(slot, p)
	if err != nil {
		return err
	}
	s.slots[slot] = tok

	// Marker first, the address follows when it resolves.
	if old := s.markers[slot]; old != nil {
		s.widget.RemoveLayer(old)
	}
	marker := mapview.NewMarker(string(slot), p)
	s.widget.AddLayer(marker)
	s.markers[slot] = marker
	s.setSlotFields(slot, "", p.String())

	s.removeLayer(&s.line)
	s.removeLayer(&s.infoWindow)
	s.clearQuoteLocked()
	s.startResolve(tok, p)

	rt, ok := s.route.CurrentRoute()
	if !ok {
		return nil
	}
	origin, _ := s.route.Point(route.SlotOrigin)
	destination, _ := s.route.Point(route.SlotDestination)
	s.drawLine([]geo.GeoPoint{origin, destination})
	s.startEstimate(rt, origin, destination)
	return nil
}

func (s *Session) resetLocked() {
	s.route.Reset()
	for slot, marker := range s.markers {
		s.widget.RemoveLayer(marker)
		delete(s.markers, slot)
	}
	s.removeLayer(&s.line)
	s.removeLayer(&s.infoWindow)
	s.setSlotFields(route.SlotOrigin, "", "")
	s.setSlotFields(route.SlotDestination, "", "")
	s.clearQuoteLocked()
}

func (s *Session) clearQuoteLocked() {
	s.result = nil
	s.quotedMinutes = 0
	s.estimatedTime = nil
}

func (s *Session) calculateLocked(duration *float64) (*quote.QuoteResult, error) {
	fields := s.form.Validate()

	var minutes float64
	haveDuration := true
	switch {
	case duration != nil && *duration != 0:
		minutes = *duration
	default:
		m, ok := s.route.Measurement()
		if ok {
			minutes = m.DurationMinutes
		} else {
			haveDuration = false
			fields = append(fields, quote.FieldDuration)
		}
	}

	if len(fields) > 0 {
		s.markTouched(fields)
		if !haveDuration && len(fields) == 1 {
			if rt, ok := s.route.CurrentRoute(); ok {
				origin, _ := s.route.Point(route.SlotOrigin)
				destination, _ := s.route.Point(route.SlotDestination)
				s.startEstimate(rt, origin, destination)
			}
		}
		return nil, quote.NewValidationError(fields...)
	}

	res, err := s.deps.Engine.Quote(minutes, s.form.Options())
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok {
			s.markTouched(appErr.Fields)
		}
		return nil, err
	}

	s.result = &res
	s.quotedMinutes = minutes
	out := res
	return &out, nil
}

func (s *Session) markTouched(fields []string) {
	for _, f := range fields {
		s.touched[f] = true
	}
}

func (s *Session) startResolve(tok route.SlotToken, p geo.GeoPoint) {
	s.begin()
	go func() {
		address := s.deps.Resolver.Resolve(s.ctx, p)

		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.done()
		if s.closed {
			return
		}
		if !s.route.ApplyAddress(tok, address) {
			s.logger.Debug("discarding stale address",
				zap.String("slot", string(tok.Slot)),
				zap.Uint64("generation", tok.Generation),
			)
			return
		}
		s.setSlotAddress(tok.Slot, address)
	}()
}

func (s *Session) startEstimate(rt route.RouteToken, origin, destination geo.GeoPoint) {
	if s.estimating != nil && *s.estimating == rt {
		return
	}
	tok := rt
	s.estimating = &tok
	s.begin()
	go func() {
		est, err := s.deps.Estimator.Estimate(s.ctx, origin, destination)

		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.done()
		if s.estimating != nil && *s.estimating == rt {
			s.estimating = nil
		}
		if s.closed {
			return
		}
		if err != nil {
			if s.route.IsCurrent(rt) {
				s.logger.Warn("route estimation failed", zap.Error(err))
			}
			return
		}

		applied, err := s.route.ApplyMeasurement(rt, route.Measurement{
			DistanceKm:      est.DistanceKm,
			DurationMinutes: est.DurationMinutes,
		})
		if err != nil {
			s.logger.Warn("discarding invalid route estimate", zap.String("source", est.Source), zap.Error(err))
			return
		}
		if !applied {
			s.logger.Debug("discarding stale route estimate", zap.Uint64("generation", rt.Generation))
			return
		}
		s.applyEstimateLocked(est, origin, destination)
	}()
}

func (s *Session) applyEstimateLocked(est estimator.Estimate, origin, destination geo.GeoPoint) {
	minutes := est.DurationMinutes
	s.estimatedTime = &minutes

	if len(est.Path) >= 2 {
		s.removeLayer(&s.line)
		s.drawLine(est.Path)
	}

	text := est.DurationText
	if text == "" {
		text = fmt.Sprintf("%d min", int64(math.Ceil(minutes)))
	}
	// The info window sits at the center of the leg.
	leg, _ := geo.BoundsOf(origin, destination)
	s.removeLayer(&s.infoWindow)
	s.infoWindow = mapview.NewInfoWindow(estimatedTimeLabel+text, leg.Center())
	s.widget.AddLayer(s.infoWindow)

	// Provider leg addresses replace reverse geocoded text in both the route and the form.
	if est.StartAddress != "" && s.route.OverrideAddress(s.slots[route.SlotOrigin], est.StartAddress) {
		s.form.Origin = est.StartAddress
	}
	if est.EndAddress != "" && s.route.OverrideAddress(s.slots[route.SlotDestination], est.EndAddress) {
		s.form.Destination = est.EndAddress
	}

	if _, err := s.calculateLocked(&minutes); err != nil {
		s.logger.Debug("quote not computed after estimation", zap.Error(err))
	}
}

func (s *Session) drawLine(path []geo.GeoPoint) {
	s.line = mapview.NewPolyline(path)
	s.widget.AddLayer(s.line)
	if b, ok := geo.BoundsOf(path...); ok {
		s.widget.FitBounds(b)
	}
}

func (s *Session) removeLayer(l **mapview.Layer) {
	if *l != nil {
		s.widget.RemoveLayer(*l)
		*l = nil
	}
}

func (s *Session) setSlotFields(slot route.MarkerSlot, address, coords string) {
	s.setSlotAddress(slot, address)
	if slot == route.SlotOrigin {
		s.form.OriginCoords = coords
	} else {
		s.form.DestinationCoords = coords
	}
}

func (s *Session) setSlotAddress(slot route.MarkerSlot, address string) {
	if slot == route.SlotOrigin {
		s.form.Origin = address
	} else {
		s.form.Destination = address
	}
}

func (s *Session) submissionLocked() QuoteSubmission {
	rs := s.route.Snapshot()
	sub := QuoteSubmission{
		ID:              uuid.New(),
		SessionID:       s.id,
		Origin:          rs.Origin,
		Destination:     rs.Destination,
		DistanceKm:      rs.DistanceKm,
		DurationMinutes: s.quotedMinutes,
		ServiceType:     s.form.ServiceType,
		Date:            s.form.Date,
		Time:            s.form.Time,
		Quote:           *s.result,
		RequestedAt:     time.Now().UTC(),
	}
	if rs.OriginAddress != nil {
		sub.OriginAddress = *rs.OriginAddress
	}
	if rs.DestinationAddress != nil {
		sub.DestinationAddress = *rs.DestinationAddress
	}
	return sub
}

// begin and done track in-flight work for Settle. Both run under s.mu.
func (s *Session) begin() {
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
}

func (s *Session) done() {
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}
