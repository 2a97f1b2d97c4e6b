package usecases

import (
	"context"

	"github.com/pkg/errors"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/shared"
)

// NewInitializeCommand builds the handshake orchestrator. It is the only
// place server identity and negotiated capabilities are joined into a
// single handshake result, and the gatekeeper that must run before the
// state store admits the Initialized phase.
func NewInitializeCommand(
	store *domain.StateStore,
	options domain.OptionsProvider,
	negotiator domain.Negotiator,
	logger domain.Logger,
) *RequestCommand[shared.InitializeParams, shared.InitializeResult] {
	desc := domain.CommandDescriptor{
		Name:           shared.OpInitialize,
		Description:    "negotiates server capabilities and completes the connection handshake",
		ExpectedStates: []domain.Status{domain.StatusStarted},
	}

	run := func(ctx context.Context, params shared.InitializeParams) (shared.InitializeResult, error) {
		starting, err := options.GetServerOptions(ctx)
		if err != nil {
			return shared.InitializeResult{}, errors.Wrap(err, "fetching server options")
		}

		negotiated, err := negotiator.Negotiate(ctx, params, starting)
		if err != nil {
			return shared.InitializeResult{}, errors.Wrap(err, "negotiating capabilities")
		}

		state := store.Current()
		result := shared.InitializeResult{
			ServerInfo: shared.ServerInfo{
				Name:           state.Name,
				ProcessID:      state.ProcessID,
				StartTimestamp: state.StartTime,
				Version:        state.Version,
			},
			Capabilities: negotiated,
		}

		if err := store.MarkInitialized(); err != nil {
			return shared.InitializeResult{}, err
		}

		logger.Info("handshake completed", domain.Fields{
			"client": params.ClientName,
		})
		return result, nil
	}

	return NewRequestCommand(desc, store, logger, run)
}
