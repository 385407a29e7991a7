package sync

import (
	"context"

	"github.com/syncmesh/syncmesh-server/internal/temporal"
)

// Outcome is a resolver's decision for a detected conflict
type Outcome struct {
	// Resolution is recorded on the conflict, exactly once
	Resolution temporal.Resolution

	// AcceptIncoming controls whether the incoming write proceeds. When
	// false the existing state stands and nothing is pushed or appended.
	AcceptIncoming bool
}

// Resolver decides how a conflict of one type is settled. Strategies are
// registered per conflict type so merge or manual policies can be added
// without touching the synchronization algorithm.
type Resolver interface {
	Resolve(ctx context.Context, conflict *temporal.Conflict) (Outcome, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, conflict *temporal.Conflict) (Outcome, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(ctx context.Context, conflict *temporal.Conflict) (Outcome, error) {
	return f(ctx, conflict)
}

// SourceWins accepts the incoming write deterministically; the existing
// unresolved entry is superseded. This is the default strategy.
func SourceWins() Resolver {
	return ResolverFunc(func(_ context.Context, _ *temporal.Conflict) (Outcome, error) {
		return Outcome{Resolution: temporal.ResolutionSourceWins, AcceptIncoming: true}, nil
	})
}

// TargetWins keeps the existing state and rejects the incoming write
func TargetWins() Resolver {
	return ResolverFunc(func(_ context.Context, _ *temporal.Conflict) (Outcome, error) {
		return Outcome{Resolution: temporal.ResolutionTargetWins, AcceptIncoming: false}, nil
	})
}

// Manual accepts the incoming write but leaves the chain entry unresolved
// until an operator settles the conflict
func Manual() Resolver {
	return ResolverFunc(func(_ context.Context, _ *temporal.Conflict) (Outcome, error) {
		return Outcome{Resolution: temporal.ResolutionManual, AcceptIncoming: true}, nil
	})
}
