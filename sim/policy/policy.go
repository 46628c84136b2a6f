// Package policy defines the contract shared by every placement and
// selection strategy, and the fallback chains that compose them.
//
// A Policy picks one entity of type T from a candidate slice given a context
// of type C (the guest being placed, or the host being relieved) and an
// exclusion set. Policies never mutate hosts or guests. A policy that cannot
// decide returns an error wrapping ErrNoCandidate or ErrDegenerateStatistics,
// which makes the enclosing Chain try its next link.
package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidate means no eligible candidate qualified.
	ErrNoCandidate = errors.New("no candidate available")
	// ErrDegenerateStatistics means the metric a policy ranks by is undefined
	// (too little history, zero variance, no degrees of freedom).
	ErrDegenerateStatistics = errors.New("degenerate statistics")
	// ErrCyclicFallback means a fallback chain refers back to itself.
	ErrCyclicFallback = errors.New("cyclic fallback chain")
)

// Policy selects one candidate.
type Policy[T comparable, C any] interface {
	Select(candidates []T, ctx C, excluded Set[T]) (T, error)
}

// Func adapts a function to Policy.
type Func[T comparable, C any] func(candidates []T, ctx C, excluded Set[T]) (T, error)

// Select implements Policy.
func (f Func[T, C]) Select(candidates []T, ctx C, excluded Set[T]) (T, error) {
	return f(candidates, ctx, excluded)
}

// Set is an exclusion set. The nil Set is empty.
type Set[T comparable] map[T]struct{}

// NewSet creates a Set holding items.
func NewSet[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Has reports membership; safe on a nil Set.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v. Panics on a nil Set, like a nil map.
func (s Set[T]) Add(v T) { s[v] = struct{}{} }

// Clone returns an independent copy (never nil).
func (s Set[T]) Clone() Set[T] {
	out := make(Set[T], len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Eligible returns the candidates not in excluded, keeping order.
func Eligible[T comparable](candidates []T, excluded Set[T]) []T {
	out := make([]T, 0, len(candidates))
	for _, c := range candidates {
		if !excluded.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// NoCandidate builds an ErrNoCandidate error naming the policy.
func NoCandidate(policy string) error {
	return fmt.Errorf("%s: %w", policy, ErrNoCandidate)
}

// Degenerate builds an ErrDegenerateStatistics error naming the policy.
func Degenerate(policy, detail string) error {
	return fmt.Errorf("%s: %s: %w", policy, detail, ErrDegenerateStatistics)
}

// IsFallbackSignal reports whether err asks the chain to try the next link.
func IsFallbackSignal(err error) bool {
	return errors.Is(err, ErrNoCandidate) || errors.Is(err, ErrDegenerateStatistics)
}
