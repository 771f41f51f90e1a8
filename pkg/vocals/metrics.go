package vocals

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/rojolang/vocals-stream-go"

// Metrics holds the OpenTelemetry instruments recorded by sessions.
// The instruments are safe for concurrent use.
type Metrics struct {
	// FramesEncoded counts frames produced by the encoder.
	FramesEncoded metric.Int64Counter

	// FramesSent counts frames written to the socket.
	FramesSent metric.Int64Counter

	// FramesLost counts frames dropped because the send queue was full.
	FramesLost metric.Int64Counter

	// SamplesDropped counts captured samples overwritten in the FrameBuffer.
	SamplesDropped metric.Int64Counter

	// Reconnects counts successful reconnections after an interruption.
	Reconnects metric.Int64Counter

	// ActiveSessions tracks sessions currently in the Active state.
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates the instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesEncoded, err = m.Int64Counter("vocals.frames.encoded",
		metric.WithDescription("Frames produced by the encoder."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("vocals.frames.sent",
		metric.WithDescription("Frames written to the stream connection."),
	); err != nil {
		return nil, err
	}
	if met.FramesLost, err = m.Int64Counter("vocals.frames.lost",
		metric.WithDescription("Frames dropped because the send queue was full."),
	); err != nil {
		return nil, err
	}
	if met.SamplesDropped, err = m.Int64Counter("vocals.samples.dropped",
		metric.WithDescription("Captured samples overwritten before encoding."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("vocals.transport.reconnects",
		metric.WithDescription("Successful reconnections after an interruption."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("vocals.sessions.active",
		metric.WithDescription("Sessions currently streaming."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// newDefaultMetrics uses the global provider, which is a no-op unless the
// application installed one (see InitPrometheus).
func newDefaultMetrics() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic("vocals: creating metrics from global provider: " + err.Error())
	}
	return m
}

// InitPrometheus installs a global MeterProvider backed by a Prometheus
// registry and returns the scrape handler plus a shutdown func.
func InitPrometheus() (http.Handler, func(context.Context) error, error) {
	registry := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), mp.Shutdown, nil
}
