package metrics

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/infra/logger"
)

const influxTimeout = 5 * time.Second

// Measurements written by InfluxSink.
const (
	MeasurementDispatch   = "dispatch_event"
	MeasurementAck        = "dispatch_ack"
	MeasurementPosition   = "vehicle_position"
	MeasurementRoute      = "route_issued"
	MeasurementTransition = "status_transition"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink keeps the position history and the dispatch timeline in an
// InfluxDB bucket. Writes are blocking and bounded by a timeout.
type InfluxSink struct {
	client influxdb2.Client
	w      pointWriter
	log    logger.Logger
}

// NewInfluxSink connects lazily; nothing is sent before the first record.
// A URL ending in /api/v2/write is accepted.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.InfluxURL, "/"), "/api/v2/write")
	opts := influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: influxTimeout})
	client := influxdb2.NewClientWithOptions(base, cfg.InfluxToken, opts)
	return &InfluxSink{
		client: client,
		w:      client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:    logger.New("influx"),
	}
}

// NewInfluxSinkWithFallback returns a NopSink when the server does not
// report a passing health check, so a missing InfluxDB never blocks dispatch.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	s := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		s.log.Errorf("influx disabled: %v", err)
		s.Close()
		return coremetrics.NopSink{}
	}
	return s
}

// Ping checks the server health endpoint.
func (s *InfluxSink) Ping(ctx context.Context) error {
	h, err := s.client.Health(ctx)
	if err != nil {
		return err
	}
	if h.Status != "pass" {
		return fmt.Errorf("health status %s", h.Status)
	}
	return nil
}

func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) put(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	if err := s.w.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx %s: %w", p.Name(), err)
	}
	return nil
}

func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	return s.put(dispatchPoint(ev))
}

func (s *InfluxSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	return s.put(ackPoint(ev))
}

func (s *InfluxSink) RecordPosition(ev coremetrics.PositionEvent) error {
	return s.put(positionPoint(ev))
}

func (s *InfluxSink) RecordRoute(ev coremetrics.RouteEvent) error {
	return s.put(routePoint(ev))
}

func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	return s.put(transitionPoint(ev))
}

func dispatchPoint(ev coremetrics.DispatchEvent) *write.Point {
	return influxdb2.NewPoint(MeasurementDispatch,
		map[string]string{
			"fault_id":   ev.FaultID,
			"vehicle_id": ev.VehicleID,
			"category":   ev.Category,
			"severity":   string(ev.Severity),
			"strategy":   ev.Strategy,
			"fallback":   strconv.FormatBool(ev.Fallback),
		},
		map[string]any{
			"score":        milli(ev.Score),
			"candidates":   ev.Candidates,
			"requires_ack": ev.RequiresAck,
		}, ev.Time)
}

func ackPoint(ev coremetrics.DispatchAckEvent) *write.Point {
	return influxdb2.NewPoint(MeasurementAck,
		map[string]string{
			"fault_id":     ev.FaultID,
			"vehicle_id":   ev.VehicleID,
			"acknowledged": strconv.FormatBool(ev.Acknowledged),
			"implicit":     strconv.FormatBool(ev.Implicit),
		},
		map[string]any{"latency_ms": milli(float64(ev.Latency) / float64(time.Millisecond))},
		ev.Time)
}

// Positions are tagged by vehicle only so that a vehicle's track stays one
// series across status changes.
func positionPoint(ev coremetrics.PositionEvent) *write.Point {
	return influxdb2.NewPoint(MeasurementPosition,
		map[string]string{"vehicle_id": ev.VehicleID},
		map[string]any{
			"lat":     ev.Position.Lat,
			"lng":     ev.Position.Lng,
			"speed":   milli(ev.Speed),
			"status":  string(ev.Status),
			"arrival": ev.Arrival,
		}, ev.Time)
}

func routePoint(ev coremetrics.RouteEvent) *write.Point {
	return influxdb2.NewPoint(MeasurementRoute,
		map[string]string{
			"vehicle_id": ev.VehicleID,
			"fault_id":   ev.FaultID,
			"source":     ev.Source,
			"reason":     ev.Reason,
		},
		map[string]any{
			"route_id":   ev.RouteID,
			"fallback":   ev.Fallback,
			"distance_m": milli(ev.DistanceM),
			"duration_s": milli(ev.DurationS),
		}, ev.Time)
}

func transitionPoint(ev coremetrics.TransitionEvent) *write.Point {
	return influxdb2.NewPoint(MeasurementTransition,
		map[string]string{"entity": ev.Entity, "id": ev.ID, "to": ev.To},
		map[string]any{"from": ev.From, "reason": ev.Reason},
		ev.Time)
}

// milli rounds to three decimals.
func milli(f float64) float64 { return math.Round(f*1000) / 1000 }
