// SPDX-License-Identifier: EPL-2.0

// Package observe records OpenTelemetry metrics for the voxframe command.
//
// [InitProvider] bridges the metrics to Prometheus so they can be scraped
// from /metrics. Tests should build [Metrics] with [NewMetrics] and their
// own [metric.MeterProvider].
package observe

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ik5/voxframe/audio"
)

const meterName = "github.com/ik5/voxframe"

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// FramesDemuxed counts frames read from storage files and captures.
	// Attributes: format, codec.
	FramesDemuxed metric.Int64Counter

	// RecordErrors counts capture records and RTP payloads skipped as
	// malformed. Attribute: format.
	RecordErrors metric.Int64Counter

	// DecodeErrors counts frames the codec handles rejected. Attribute:
	// codec.
	DecodeErrors metric.Int64Counter

	// FilesProcessed counts input files. Attributes: command, status.
	FilesProcessed metric.Int64Counter

	// FileDuration tracks the wall time spent on one file. Attribute:
	// command.
	FileDuration metric.Float64Histogram
}

var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60,
}

// NewMetrics creates the instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesDemuxed, err = m.Int64Counter("voxframe.frames.demuxed",
		metric.WithDescription("Frames read from storage files and captures."),
	); err != nil {
		return nil, err
	}
	if met.RecordErrors, err = m.Int64Counter("voxframe.record.errors",
		metric.WithDescription("Capture records and RTP payloads skipped as malformed."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voxframe.decode.errors",
		metric.WithDescription("Frames rejected by the codec handles."),
	); err != nil {
		return nil, err
	}
	if met.FilesProcessed, err = m.Int64Counter("voxframe.files.processed",
		metric.WithDescription("Input files by command and status."),
	); err != nil {
		return nil, err
	}
	if met.FileDuration, err = m.Float64Histogram("voxframe.file.duration",
		metric.WithDescription("Wall time spent on one input file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFile counts one processed file. A nil err is status "ok".
func (m *Metrics) RecordFile(ctx context.Context, command string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FilesProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	))
	m.FileDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("command", command)))
}

func (m *Metrics) RecordError(ctx context.Context, format string) {
	m.RecordErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}

func (m *Metrics) RecordDecodeError(ctx context.Context, codec audio.Codec) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("codec", codec.String())))
}

// CountFrames wraps d so every frame it yields is counted.
func (m *Metrics) CountFrames(ctx context.Context, d audio.Demuxer) audio.Demuxer {
	return &countingDemuxer{Demuxer: d, m: m, ctx: ctx}
}

type countingDemuxer struct {
	audio.Demuxer
	m   *Metrics
	ctx context.Context
}

func (d *countingDemuxer) NextFrame() (audio.Frame, error) {
	f, err := d.Demuxer.NextFrame()
	if err == nil {
		d.m.FramesDemuxed.Add(d.ctx, 1, metric.WithAttributes(
			attribute.String("format", d.Header().Format),
			attribute.String("codec", f.Codec.String()),
		))
	} else if !errors.Is(err, io.EOF) {
		d.m.RecordError(d.ctx, d.Header().Format)
	}
	return f, err
}
