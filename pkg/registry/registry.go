// Package registry provides immutable-after-wiring lookup tables keyed by validated slugs.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"
)

var (
	// ErrInvalidSlug indicates a slug that does not match the allowed pattern.
	ErrInvalidSlug = errors.New("invalid slug")

	// ErrDuplicateSlug indicates a slug registered twice.
	ErrDuplicateSlug = errors.New("slug already registered")
)

var slugPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Slug identifies an entry of a registry.
type Slug string

// ParseSlug validates s.
func ParseSlug(s string) (Slug, error) {
	if !slugPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlug, s)
	}

	return Slug(s), nil
}

func (s Slug) String() string {
	return string(s)
}

// Registry maps slugs to values. It is meant to be filled at construction
// time and read concurrently afterwards.
type Registry[T any] struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[Slug]T
}

func New[T any](logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry[T]{
		logger:  logger,
		entries: make(map[Slug]T),
	}
}

// Register stores value under slug.
func (r *Registry[T]) Register(slug string, value T) error {
	s, err := ParseSlug(slug)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[s]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSlug, slug)
	}

	r.entries[s] = value
	r.logger.Debug("registered", "slug", slug)

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry[T]) MustRegister(slug string, value T) {
	if err := r.Register(slug, value); err != nil {
		panic(err)
	}
}

// Resolve returns the value stored under slug. An unknown slug is not an
// error: callers decide how to degrade.
func (r *Registry[T]) Resolve(slug string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.entries[Slug(slug)]

	return value, ok
}

// Slugs returns the registered slugs in lexical order.
func (r *Registry[T]) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for slug := range r.entries {
		out = append(out, string(slug))
	}

	slices.Sort(out)

	return out
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
