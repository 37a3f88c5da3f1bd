package validator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
)

type stubDirectory struct {
	exists bool
	err    error
	delay  time.Duration
	calls  int64
}

func (d *stubDirectory) ExistsByID(ctx context.Context, id int64) (bool, error) {
	atomic.AddInt64(&d.calls, 1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return d.exists, d.err
}

func newTestValidator() *Validator {
	return New(50*time.Millisecond, BreakerConfig{
		FailureThreshold: 2,
		WindowSize:       10,
		CoolDown:         time.Minute,
		HalfOpenProbes:   1,
	}, logger.NewNop())
}

func TestExists_DefinitiveAnswers(t *testing.T) {
	v := newTestValidator()
	v.Register(KindCargo, &stubDirectory{exists: true}, FallbackReject)
	v.Register(KindUser, &stubDirectory{exists: false}, FallbackReject)

	ok, err := v.Exists(context.Background(), KindCargo, 42)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}

	ok, err = v.Exists(context.Background(), KindUser, 7)
	if err != nil || ok {
		t.Fatalf("definitive miss must be (false, nil), got (%v, %v)", ok, err)
	}
}

func TestValidate_MapsMissToNotFound(t *testing.T) {
	v := newTestValidator()
	v.Register(KindSpacecraft, &stubDirectory{exists: false}, FallbackReject)

	err := v.Validate(context.Background(), Ref{Kind: KindSpacecraft, ID: 9})
	if !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestExists_ErrorResolvesThroughRejectFallback(t *testing.T) {
	v := newTestValidator()
	v.Register(KindCargo, &stubDirectory{err: errors.New("connection refused")}, FallbackReject)

	_, err := v.Exists(context.Background(), KindCargo, 42)
	if !apierr.IsCode(err, apierr.CodeReferenceUnavailable) {
		t.Fatalf("expected REFERENCE_UNAVAILABLE, got %v", err)
	}
}

func TestExists_ErrorResolvesThroughAllowFallback(t *testing.T) {
	v := newTestValidator()
	v.Register(KindCargo, &stubDirectory{err: errors.New("connection refused")}, FallbackAllow)

	ok, err := v.Exists(context.Background(), KindCargo, 42)
	if err != nil || !ok {
		t.Fatalf("allow fallback must answer (true, nil), got (%v, %v)", ok, err)
	}
}

func TestExists_TimeoutCountsAsFailure(t *testing.T) {
	v := newTestValidator()
	dir := &stubDirectory{exists: true, delay: 500 * time.Millisecond}
	v.Register(KindUser, dir, FallbackReject)

	_, err := v.Exists(context.Background(), KindUser, 1)
	if !apierr.IsCode(err, apierr.CodeReferenceUnavailable) {
		t.Fatalf("expected REFERENCE_UNAVAILABLE on timeout, got %v", err)
	}
}

func TestExists_OpenBreakerShortCircuits(t *testing.T) {
	v := newTestValidator()
	dir := &stubDirectory{err: errors.New("down")}
	v.Register(KindCargo, dir, FallbackReject)

	// Trip the breaker.
	for i := 0; i < 2; i++ {
		_, _ = v.Exists(context.Background(), KindCargo, 1)
	}
	if v.Breaker(KindCargo).State() != StateOpen {
		t.Fatalf("breaker did not open after repeated failures")
	}

	before := atomic.LoadInt64(&dir.calls)
	for i := 0; i < 5; i++ {
		_, err := v.Exists(context.Background(), KindCargo, 1)
		if !apierr.IsCode(err, apierr.CodeReferenceUnavailable) {
			t.Fatalf("open breaker must resolve via fallback, got %v", err)
		}
	}
	if after := atomic.LoadInt64(&dir.calls); after != before {
		t.Errorf("open breaker still attempted %d remote calls", after-before)
	}
}

func TestExists_ForcedOpenFallbackDeterminism(t *testing.T) {
	v := newTestValidator()
	v.Register(KindStorageUnit, &stubDirectory{exists: true}, FallbackAllow)
	v.Breaker(KindStorageUnit).ForceOpen()

	for i := 0; i < 10; i++ {
		ok, err := v.Exists(context.Background(), KindStorageUnit, 3)
		if err != nil || !ok {
			t.Fatalf("call %d: expected configured fallback (true, nil), got (%v, %v)", i, ok, err)
		}
	}
}

func TestValidateRefs_AllPresent(t *testing.T) {
	v := newTestValidator()
	v.Register(KindCargo, &stubDirectory{exists: true}, FallbackReject)
	v.Register(KindUser, &stubDirectory{exists: true}, FallbackReject)
	v.Register(KindStorageUnit, &stubDirectory{exists: true}, FallbackReject)
	v.Register(KindSpacecraft, &stubDirectory{exists: true}, FallbackReject)

	err := v.ValidateRefs(context.Background(),
		Ref{KindCargo, 1}, Ref{KindUser, 2}, Ref{KindStorageUnit, 3}, Ref{KindSpacecraft, 4})
	if err != nil {
		t.Fatalf("expected all refs valid, got %v", err)
	}
}

func TestValidateRefs_OneMissingRejectsAll(t *testing.T) {
	v := newTestValidator()
	v.Register(KindCargo, &stubDirectory{exists: true}, FallbackReject)
	v.Register(KindSpacecraft, &stubDirectory{exists: false}, FallbackReject)

	err := v.ValidateRefs(context.Background(),
		Ref{KindCargo, 1}, Ref{KindSpacecraft, 2})
	if !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
