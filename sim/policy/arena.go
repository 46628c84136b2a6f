package policy

import (
	"fmt"
	"sort"
)

type arenaEntry[T comparable, C any] struct {
	policy   Policy[T, C]
	fallback string
}

// Arena holds named policies linked by fallback name. Chains are resolved
// by walking the links from a starting name; a walk that revisits a name is
// a configuration error reported at resolve time, never at selection time.
type Arena[T comparable, C any] struct {
	entries map[string]arenaEntry[T, C]
}

// NewArena creates an empty arena.
func NewArena[T comparable, C any]() *Arena[T, C] {
	return &Arena[T, C]{entries: make(map[string]arenaEntry[T, C])}
}

// Register adds a named policy whose fallback is the policy registered as
// fallback ("" for none). A policy naming itself as its own fallback is
// rejected immediately.
func (a *Arena[T, C]) Register(name string, p Policy[T, C], fallback string) error {
	if name == "" {
		return fmt.Errorf("policy name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("policy %q is nil", name)
	}
	if name == fallback {
		return fmt.Errorf("policy %q uses itself as fallback: %w", name, ErrCyclicFallback)
	}
	if _, exists := a.entries[name]; exists {
		return fmt.Errorf("policy %q already registered", name)
	}
	a.entries[name] = arenaEntry[T, C]{policy: p, fallback: fallback}
	return nil
}

// Names returns the registered names, sorted.
func (a *Arena[T, C]) Names() []string {
	names := make([]string, 0, len(a.entries))
	for n := range a.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the chain starting at name.
func (a *Arena[T, C]) Resolve(name string) (*Chain[T, C], error) {
	var links []Link[T, C]
	visited := make(map[string]bool)
	for cur := name; cur != ""; {
		if visited[cur] {
			return nil, fmt.Errorf("policy %q reaches %q again: %w", name, cur, ErrCyclicFallback)
		}
		visited[cur] = true
		e, ok := a.entries[cur]
		if !ok {
			if cur == name {
				return nil, fmt.Errorf("unknown policy %q", name)
			}
			return nil, fmt.Errorf("policy %q: unknown fallback %q", name, cur)
		}
		links = append(links, Link[T, C]{Name: cur, Policy: e.policy})
		cur = e.fallback
	}
	return NewChain(links...)
}

// Validate resolves every registered name and returns the first error.
func (a *Arena[T, C]) Validate() error {
	for _, n := range a.Names() {
		if _, err := a.Resolve(n); err != nil {
			return err
		}
	}
	return nil
}
