package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/platform/metrics"
)

// Kind identifies which remote service an existence check targets.
type Kind string

const (
	KindUser        Kind = "user"
	KindCargo       Kind = "cargo"
	KindStorageUnit Kind = "storage_unit"
	KindSpacecraft  Kind = "spacecraft"
)

// Ref is a foreign reference by value: an id owned by another service.
type Ref struct {
	Kind Kind
	ID   int64
}

// Directory answers existence lookups against one remote service. Deployments
// swap implementations (direct HTTP, redis-cached) without touching callers.
type Directory interface {
	ExistsByID(ctx context.Context, id int64) (bool, error)
}

// FallbackPolicy decides the answer when no definitive one can be obtained.
type FallbackPolicy int

const (
	// FallbackReject treats an unverifiable reference as non-existent. The
	// safe default for write-path checks: allowing on a false premise
	// corrupts a capacity or audit invariant.
	FallbackReject FallbackPolicy = iota
	// FallbackAllow optimistically accepts, for advisory-only checks.
	FallbackAllow
)

func (p FallbackPolicy) String() string {
	if p == FallbackAllow {
		return "allow"
	}
	return "reject"
}

var errBreakerOpen = errors.New("circuit breaker open")

type entry struct {
	dir      Directory
	breaker  *Breaker
	fallback FallbackPolicy
}

// Validator guards remote existence checks with a per-kind circuit breaker,
// per-call timeout and a configured fallback policy.
type Validator struct {
	entries map[Kind]*entry
	timeout time.Duration
	breaker BreakerConfig
	log     *logger.Logger
}

func New(timeout time.Duration, breakerCfg BreakerConfig, log *logger.Logger) *Validator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Validator{
		entries: make(map[Kind]*entry),
		timeout: timeout,
		breaker: breakerCfg,
		log:     log,
	}
}

// Register wires a directory for one entity kind. Not safe to call once the
// validator is serving.
func (v *Validator) Register(kind Kind, dir Directory, fallback FallbackPolicy) {
	b := NewBreaker(v.breaker)
	b.OnTransition(func(from, to BreakerState) {
		metrics.BreakerTransitions.WithLabelValues(string(kind), to.String()).Inc()
		v.log.Warn("reference breaker state change",
			"kind", string(kind), "from", from.String(), "to", to.String())
	})
	v.entries[kind] = &entry{dir: dir, breaker: b, fallback: fallback}
}

// Breaker exposes the breaker for a kind, for health reporting and tests.
func (v *Validator) Breaker(kind Kind) *Breaker {
	e, ok := v.entries[kind]
	if !ok {
		return nil
	}
	return e.breaker
}

// Exists answers whether the referenced entity exists. A definitive remote
// "no" returns (false, nil); an unverifiable lookup resolves through the
// fallback policy, where rejection surfaces as REFERENCE_UNAVAILABLE so
// callers can tell "definitely missing" from "could not verify".
func (v *Validator) Exists(ctx context.Context, kind Kind, id int64) (bool, error) {
	e, ok := v.entries[kind]
	if !ok {
		return false, apierr.Internal(fmt.Errorf("no directory registered for kind %q", kind))
	}

	if !e.breaker.Allow() {
		return v.resolveFallback(kind, id, e, errBreakerOpen)
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	exists, err := e.dir.ExistsByID(callCtx, id)
	if err != nil {
		e.breaker.RecordFailure()
		metrics.LookupFailures.WithLabelValues(string(kind)).Inc()
		return v.resolveFallback(kind, id, e, err)
	}

	e.breaker.RecordSuccess()
	return exists, nil
}

func (v *Validator) resolveFallback(kind Kind, id int64, e *entry, cause error) (bool, error) {
	metrics.FallbackInvocations.WithLabelValues(string(kind), e.fallback.String()).Inc()
	v.log.Warn("reference lookup resolved by fallback",
		"kind", string(kind), "id", id, "policy", e.fallback.String(), "cause", cause.Error())

	if e.fallback == FallbackAllow {
		return true, nil
	}
	return false, apierr.ReferenceUnavailable(string(kind), id, cause)
}

// Validate resolves one reference to an error: nil when it exists, NOT_FOUND
// on a definitive miss, REFERENCE_UNAVAILABLE when it could not be verified.
func (v *Validator) Validate(ctx context.Context, ref Ref) error {
	exists, err := v.Exists(ctx, ref.Kind, ref.ID)
	if err != nil {
		return err
	}
	if !exists {
		return apierr.NotFound(string(ref.Kind), ref.ID)
	}
	return nil
}

// ValidateRefs checks independent references concurrently. The first failure
// cancels the remaining lookups.
func (v *Validator) ValidateRefs(ctx context.Context, refs ...Ref) error {
	if len(refs) == 0 {
		return nil
	}
	if len(refs) == 1 {
		return v.Validate(ctx, refs[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			return v.Validate(gctx, ref)
		})
	}
	return g.Wait()
}
