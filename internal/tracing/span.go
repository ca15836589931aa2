package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by run and iteration spans.
const (
	AttrRunID        = attribute.Key("pktbench.run_id")
	AttrTxInterface  = attribute.Key("pktbench.tx_interface")
	AttrRxInterface  = attribute.Key("pktbench.rx_interface")
	AttrPacketSize   = attribute.Key("pktbench.packet_size")
	AttrIterations   = attribute.Key("pktbench.iterations")
	AttrIteration    = attribute.Key("pktbench.iteration")
	AttrPackets      = attribute.Key("pktbench.packets")
	AttrParallelID   = attribute.Key("pktbench.parallel_id")
	AttrPacketRate   = attribute.Key("pktbench.pps")
	AttrBitRate      = attribute.Key("pktbench.bps")
	AttrAverageBatch = attribute.Key("pktbench.average_batch")
)

// StartRunSpan starts the span covering one experiment run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, runID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "experiment",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(AttrRunID.String(runID))
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// StartIterationSpan starts a child span for one measurement pass.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, index int, iface string, packets int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "measurement",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		AttrIteration.Int(index),
		AttrRxInterface.String(iface),
		AttrPackets.Int(packets),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
