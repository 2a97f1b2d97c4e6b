package shared

import (
	"sync"
	"unicode"
	"unicode/utf8"
)

// FallbackFunc is invoked when an identifier has no explicit table entry
// and the resolver falls back to the naming convention. Undocumented wire
// names risk protocol drift, so callers typically wire this to a warning
// diagnostic.
type FallbackFunc func(identifier, wireName string)

// NameResolver maps internal operation identifiers to wire method names.
// Resolution is deterministic for the lifetime of the resolver: explicit
// table entries win, everything else goes through the convention
// transform. Safe for concurrent use.
type NameResolver struct {
	table      map[string]string
	onFallback FallbackFunc

	mu       sync.Mutex
	resolved map[string]string
}

// NewNameResolver creates a resolver over the given compliance table.
// The table is copied; later mutation of the argument has no effect.
// onFallback may be nil.
func NewNameResolver(table map[string]string, onFallback FallbackFunc) *NameResolver {
	copied := make(map[string]string, len(table))
	for k, v := range table {
		copied[k] = v
	}
	return &NameResolver{
		table:      copied,
		onFallback: onFallback,
		resolved:   make(map[string]string),
	}
}

// Resolve returns the wire name for the given identifier. The fallback
// diagnostic fires at most once per identifier.
func (r *NameResolver) Resolve(identifier string) string {
	if name, ok := r.table[identifier]; ok {
		return name
	}

	name := lowerCamelCase(identifier)

	r.mu.Lock()
	_, seen := r.resolved[identifier]
	r.resolved[identifier] = name
	r.mu.Unlock()

	if !seen && r.onFallback != nil {
		r.onFallback(identifier, name)
	}
	return name
}

// lowerCamelCase lowers the leading upper-case run of the identifier, so
// "Initialize" becomes "initialize" and "FooBar" becomes "fooBar".
func lowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	first, size := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(first) {
		return s
	}
	return string(unicode.ToLower(first)) + s[size:]
}
