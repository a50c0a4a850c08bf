package persistence

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/sessionctx/types"
)

const instrumentationName = "github.com/BaSui01/sessionctx/persistence"

// 传给 Observer 的操作结果标签
const (
	StatusOK               = "ok"
	StatusCapacityExceeded = "capacity_exceeded"
	StatusInvalidInput     = "invalid_input"
	StatusError            = "error"
)

// Observer 接收存储遥测，由 internal/metrics.Collector 实现
type Observer interface {
	ObserveStoreOp(backend, op, status string, d time.Duration)
	ObserveCompaction(backend string, rescued bool)
}

type nopObserver struct{}

func (nopObserver) ObserveStoreOp(string, string, string, time.Duration) {}
func (nopObserver) ObserveCompaction(string, bool)                       {}

// instrumentedStore 给 Store 加上 OpenTelemetry span 与 Observer 计时
type instrumentedStore struct {
	inner    Store
	backend  string
	observer Observer
	tracer   trace.Tracer
}

// Instrument 包装 s，每次 Load 与 SavePatch 都会被追踪和计时
func Instrument(s Store, backend string, obs Observer) Store {
	if obs == nil {
		obs = nopObserver{}
	}
	return &instrumentedStore{
		inner:    s,
		backend:  backend,
		observer: obs,
		tracer:   otel.Tracer(instrumentationName),
	}
}

func (s *instrumentedStore) Load(ctx context.Context, sid string) (types.Document, error) {
	ctx, span := s.tracer.Start(ctx, "session_store.load",
		trace.WithAttributes(
			attribute.String("store.backend", s.backend),
			attribute.String("session.id", sid),
		),
	)
	defer span.End()
	span.SetAttributes(turnAttributes(ctx)...)

	start := time.Now()
	doc, err := s.inner.Load(ctx, sid)
	s.finish(span, "load", start, err)
	span.SetAttributes(attribute.Bool("session.found", doc != nil))
	return doc, err
}

func (s *instrumentedStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
	ctx, span := s.tracer.Start(ctx, "session_store.save_patch",
		trace.WithAttributes(
			attribute.String("store.backend", s.backend),
			attribute.String("session.id", sid),
			attribute.Int("patch.keys", len(patch)),
		),
	)
	defer span.End()
	span.SetAttributes(turnAttributes(ctx)...)

	start := time.Now()
	err := s.inner.SavePatch(ctx, sid, patch, opts...)
	s.finish(span, "save_patch", start, err)

	var capErr *CapacityExceededError
	if errors.As(err, &capErr) {
		span.SetAttributes(
			attribute.Int("payload.bytes", capErr.Size),
			attribute.Int("payload.limit", capErr.Limit),
		)
	}
	return err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}

// Unwrap 返回被包装的存储
func (s *instrumentedStore) Unwrap() Store {
	return s.inner
}

func (s *instrumentedStore) finish(span trace.Span, op string, start time.Time, err error) {
	status := statusOf(err)
	s.observer.ObserveStoreOp(s.backend, op, status, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
}

// turnAttributes 取出引擎写入 ctx 的领域与轮次
func turnAttributes(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if d, ok := types.DomainFrom(ctx); ok {
		attrs = append(attrs, attribute.String("session.domain", d.Key()))
	}
	if idx, ok := types.TurnIdx(ctx); ok {
		attrs = append(attrs, attribute.Int("session.turn_idx", idx))
	}
	return attrs
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrCapacityExceeded):
		return StatusCapacityExceeded
	case errors.Is(err, ErrInvalidInput):
		return StatusInvalidInput
	default:
		return StatusError
	}
}
