// Package server provides the public facade of the RPC server framework:
// construction of a handshake-gated session host over a named duplex
// endpoint, registration of request and notification commands, and the
// run loop with its exit-code contract.
package server

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/shared"
	domaintransport "github.com/piperpc/piperpc/internal/domain/transport"
	"github.com/piperpc/piperpc/internal/infrastructure/logging"
	serverimpl "github.com/piperpc/piperpc/internal/infrastructure/server"
	"github.com/piperpc/piperpc/internal/infrastructure/transport"
	"github.com/piperpc/piperpc/internal/usecases"
)

// State names a server lifecycle phase in the public API.
type State string

// Public lifecycle phases, mirroring the internal state machine.
const (
	StateStarted      State = "Started"
	StateInitialized  State = "Initialized"
	StateShuttingDown State = "ShuttingDown"
	StateStopped      State = "Stopped"
)

// Options is the opaque configuration record negotiated during the
// handshake.
type Options = shared.Options

// InitializeParams carries the client's initialization parameters.
type InitializeParams = shared.InitializeParams

// OptionsFunc supplies the starting server configuration.
type OptionsFunc func(ctx context.Context) (Options, error)

// NegotiateFunc is the protocol-specific handshake step: it refines the
// starting configuration using the client's initialization parameters.
type NegotiateFunc func(ctx context.Context, params InitializeParams, opts Options) (Options, error)

// RequestHandler handles a request/response command with raw parameters.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NotificationHandler handles a fire-and-forget command with raw
// parameters.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Server is a handshake-gated RPC server bound to a named duplex
// endpoint.
type Server struct {
	name           string
	version        string
	transportName  string
	concurrency    int
	requestTimeout time.Duration
	logger         *logging.Logger
	store          *domain.StateStore
	registry       *serverimpl.Registry
	resolver       *shared.NameResolver
	factory        domaintransport.StreamFactory
	host           *serverimpl.Host
	optionsFn      OptionsFunc
	negotiateFn    NegotiateFunc
	initialized    usecases.InitializedHook
	nameTable      map[string]string
}

// Option configures a Server during construction.
type Option func(*Server)

// WithTransportName sets the name of the duplex endpoint. Both the
// accept side and the connect side derive the endpoint from this name.
func WithTransportName(name string) Option {
	return func(s *Server) { s.transportName = name }
}

// WithConcurrency bounds the number of simultaneously executing requests
// within a session.
func WithConcurrency(n int) Option {
	return func(s *Server) { s.concurrency = n }
}

// WithRequestTimeout bounds a single command execution. A request that
// exceeds the timeout fails alone; the session is unaffected.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithLogger sets the diagnostic sink.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithServerOptions sets the provider of the starting configuration
// consumed by the initialize handshake.
func WithServerOptions(fn OptionsFunc) Option {
	return func(s *Server) { s.optionsFn = fn }
}

// WithNegotiator sets the protocol-specific capability negotiation step.
func WithNegotiator(fn NegotiateFunc) Option {
	return func(s *Server) { s.negotiateFn = fn }
}

// WithInitializedHook registers a callback invoked when the peer
// acknowledges the handshake result.
func WithInitializedHook(hook func(ctx context.Context)) Option {
	return func(s *Server) { s.initialized = usecases.InitializedHook(hook) }
}

// WithStreamFactory overrides the stream factory. Intended for embedding
// the server over transports other than the named socket endpoint.
func WithStreamFactory(factory domaintransport.StreamFactory) Option {
	return func(s *Server) { s.factory = factory }
}

// WithWireName adds an explicit identifier-to-wire-name mapping to the
// protocol compliance table.
func WithWireName(identifier, wireName string) Option {
	return func(s *Server) { s.nameTable[identifier] = wireName }
}

// NewServer constructs a server with the given identity and options. The
// built-in lifecycle commands (initialize, initialized, shutdown, exit)
// are registered automatically.
func NewServer(name, version string, opts ...Option) (*Server, error) {
	s := &Server{
		name:          name,
		version:       version,
		transportName: name,
		nameTable:     shared.ComplianceTable(),
		optionsFn: func(ctx context.Context) (Options, error) {
			return Options{}, nil
		},
		negotiateFn: func(ctx context.Context, params InitializeParams, opts Options) (Options, error) {
			return opts, nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.New(logging.DefaultConfig())
		if err != nil {
			return nil, errors.Wrap(err, "building logger")
		}
		s.logger = logger
	}

	s.store = domain.NewStateStore(name, version, os.Getpid(), time.Now())
	s.resolver = shared.NewNameResolver(s.nameTable, func(identifier, wireName string) {
		s.logger.Warn("no explicit wire name mapping", logging.Fields{
			"identifier": identifier,
			"wireName":   wireName,
		})
	})
	s.registry = serverimpl.NewRegistry()

	if s.factory == nil {
		s.factory = transport.NewSocketStreamFactory(s.transportName, s.logger)
	}

	s.host = serverimpl.NewHost(s.factory, s.registry, s.resolver, s.logger, serverimpl.HostConfig{
		Concurrency:    s.concurrency,
		RequestTimeout: s.requestTimeout,
	})

	if err := s.registerLifecycleCommands(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) registerLifecycleCommands() error {
	store := s.store
	logger := s.logger
	optionsFn := s.optionsFn
	negotiateFn := s.negotiateFn
	hook := s.initialized
	host := s.host

	provider := providerFuncs{options: optionsFn}
	negotiator := domain.NegotiatorFunc(negotiateFn)

	registrations := map[string]func() domain.Command{
		shared.OpInitialize: func() domain.Command {
			return usecases.NewInitializeCommand(store, provider, negotiator, logger)
		},
		shared.OpInitialized: func() domain.Command {
			return usecases.NewInitializedCommand(store, logger, hook)
		},
		shared.OpShutdown: func() domain.Command {
			return usecases.NewShutdownCommand(store, logger)
		},
		shared.OpExit: func() domain.Command {
			return usecases.NewExitCommand(store, host, logger)
		},
	}
	for _, name := range []string{shared.OpInitialize, shared.OpInitialized, shared.OpShutdown, shared.OpExit} {
		if err := s.registry.Register(name, registrations[name]); err != nil {
			return err
		}
	}
	return nil
}

// AddRequestCommand registers a request/response command valid in the
// given states. An empty state set means the command carries no
// precondition.
func (s *Server) AddRequestCommand(name, description string, states []State, handler RequestHandler) error {
	desc := domain.CommandDescriptor{
		Name:           name,
		Description:    description,
		ExpectedStates: toStatuses(states),
	}
	store := s.store
	logger := s.logger
	return s.registry.Register(name, func() domain.Command {
		return usecases.NewRequestCommand(desc, store, logger,
			func(ctx context.Context, params json.RawMessage) (interface{}, error) {
				return handler(ctx, params)
			})
	})
}

// AddNotificationCommand registers a fire-and-forget command valid in
// the given states.
func (s *Server) AddNotificationCommand(name, description string, states []State, handler NotificationHandler) error {
	desc := domain.CommandDescriptor{
		Name:           name,
		Description:    description,
		ExpectedStates: toStatuses(states),
	}
	store := s.store
	logger := s.logger
	return s.registry.Register(name, func() domain.Command {
		return usecases.NewNotificationCommand(desc, store, logger,
			func(ctx context.Context, params json.RawMessage) error {
				return handler(ctx, params)
			})
	})
}

// Serve runs the accept loop until the context is cancelled or the peer
// requests an exit.
func (s *Server) Serve(ctx context.Context) error {
	return s.host.Run(ctx)
}

// Stop stops the host deliberately. The stop is recorded as unclean; a
// clean stop only happens through the shutdown/exit sequence.
func (s *Server) Stop() {
	s.host.RequestStop(false)
}

// ExitCode reports the process exit code mandated by the protocol: 0
// when a shutdown request preceded the exit notification, 1 otherwise.
func (s *Server) ExitCode() int {
	if s.host.CleanStop() {
		return 0
	}
	return 1
}

// State returns the current lifecycle phase.
func (s *Server) State() State {
	return State(s.store.Current().Status.String())
}

func toStatuses(states []State) []domain.Status {
	statuses := make([]domain.Status, 0, len(states))
	for _, state := range states {
		switch state {
		case StateStarted:
			statuses = append(statuses, domain.StatusStarted)
		case StateInitialized:
			statuses = append(statuses, domain.StatusInitialized)
		case StateShuttingDown:
			statuses = append(statuses, domain.StatusShuttingDown)
		case StateStopped:
			statuses = append(statuses, domain.StatusStopped)
		}
	}
	return statuses
}

type providerFuncs struct {
	options OptionsFunc
}

func (p providerFuncs) GetServerOptions(ctx context.Context) (shared.Options, error) {
	return p.options(ctx)
}
