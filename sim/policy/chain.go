package policy

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Link is one named step of a Chain.
type Link[T comparable, C any] struct {
	Name   string
	Policy Policy[T, C]
}

// Chain tries its links in order until one yields a candidate outside the
// exclusion set. A chain of N links performs at most N delegations.
type Chain[T comparable, C any] struct {
	links []Link[T, C]
}

// NewChain builds a chain from links. A name appearing twice would make the
// chain refer back to itself and is rejected with ErrCyclicFallback.
func NewChain[T comparable, C any](links ...Link[T, C]) (*Chain[T, C], error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("empty policy chain")
	}
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if l.Policy == nil {
			return nil, fmt.Errorf("policy %q is nil", l.Name)
		}
		if seen[l.Name] {
			return nil, fmt.Errorf("policy %q appears twice: %w", l.Name, ErrCyclicFallback)
		}
		seen[l.Name] = true
	}
	return &Chain[T, C]{links: append([]Link[T, C](nil), links...)}, nil
}

// Names returns the link names in delegation order.
func (c *Chain[T, C]) Names() []string {
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.Name
	}
	return names
}

// Len returns the number of links.
func (c *Chain[T, C]) Len() int { return len(c.links) }

func (c *Chain[T, C]) String() string { return strings.Join(c.Names(), " -> ") }

// Select implements Policy.
func (c *Chain[T, C]) Select(candidates []T, ctx C, excluded Set[T]) (T, error) {
	v, _, err := c.Decide(candidates, ctx, excluded)
	return v, err
}

// Decide is Select that also reports which link decided.
func (c *Chain[T, C]) Decide(candidates []T, ctx C, excluded Set[T]) (T, string, error) {
	var zero T
	var reasons []string
	for _, l := range c.links {
		v, err := l.Policy.Select(candidates, ctx, excluded)
		if err == nil {
			if excluded.Has(v) {
				// A link must never hand back an excluded entity; treat it as
				// undecided and keep going.
				logrus.Warnf("policy %s returned an excluded candidate; falling back", l.Name)
				reasons = append(reasons, l.Name+": returned excluded candidate")
				continue
			}
			return v, l.Name, nil
		}
		if !IsFallbackSignal(err) {
			logrus.Warnf("policy %s failed: %v; falling back", l.Name, err)
		} else {
			logrus.Debugf("policy %s undecided: %v", l.Name, err)
		}
		reasons = append(reasons, err.Error())
	}
	return zero, "", fmt.Errorf("chain [%s] exhausted (%s): %w", c, strings.Join(reasons, "; "), ErrNoCandidate)
}
