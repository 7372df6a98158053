package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestToOTelConvertsSupportedTypes(t *testing.T) {
	got := toOTel([]Attribute{
		String(AttrSubjectHash, "abc"),
		Bool(AttrCreated, true),
		Int(AttrAttempt, 2),
		Duration("latency_ms", 1500*time.Millisecond),
		{Key: "ignored", Value: struct{}{}},
	})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(AttrSubjectHash, "abc"),
		attribute.Bool(AttrCreated, true),
		attribute.Int(AttrAttempt, 2),
		attribute.Int64("latency_ms", 1500),
	}, got)
}

func TestHashSubject(t *testing.T) {
	assert.Empty(t, HashSubject(""))
	h := HashSubject("FIN-1234")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashSubject("FIN-1234"))
	assert.NotEqual(t, h, HashSubject("FIN-1235"))
}

func TestOTelTracerSpansEnd(t *testing.T) {
	tr := NewOTel(noop.NewTracerProvider().Tracer("test"))
	ctx, span := tr.Start(context.Background(), SpanTokenExchange, Int(AttrAttempt, 1))
	assert.NotNil(t, ctx)
	span.AddEvent("retry")
	span.End(errors.New("boom"))

	_, n := NewNoop().Start(context.Background(), SpanLoginInitiate)
	n.End(nil)
}
