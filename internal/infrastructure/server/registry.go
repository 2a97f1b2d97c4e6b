package server

import (
	"sync"

	"github.com/golobby/container/v3"
	"github.com/pkg/errors"

	"github.com/piperpc/piperpc/internal/domain"
)

// Registry holds the command resolvers exposed to remote peers. Commands
// are registered as named lazy transient bindings on an IoC container,
// so every session resolves a brand-new target instance set and no
// per-connection state leaks across sessions.
type Registry struct {
	mu        sync.Mutex
	container container.Container
	names     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{container: container.New()}
}

// Register binds a command resolver under its internal operation name.
// The resolver runs once per session, during session setup.
func (r *Registry) Register(name string, resolver func() domain.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.names {
		if existing == name {
			return errors.Errorf("command %q is already registered", name)
		}
	}
	if err := r.container.NamedTransientLazy(name, resolver); err != nil {
		return errors.Wrapf(err, "registering command %q", name)
	}
	r.names = append(r.names, name)
	return nil
}

// Names returns the registered operation names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// ResolveAll opens a fresh resolution pass and returns one new instance
// per registered command.
func (r *Registry) ResolveAll() ([]domain.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commands := make([]domain.Command, 0, len(r.names))
	for _, name := range r.names {
		var cmd domain.Command
		if err := r.container.NamedResolve(&cmd, name); err != nil {
			return nil, errors.Wrapf(err, "resolving command %q", name)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}
