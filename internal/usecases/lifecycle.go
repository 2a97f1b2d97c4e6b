package usecases

import (
	"context"

	"github.com/piperpc/piperpc/internal/domain"
	"github.com/piperpc/piperpc/internal/domain/shared"
)

// InitializedHook is invoked when the peer confirms it has processed the
// handshake result. May be nil.
type InitializedHook func(ctx context.Context)

// NewInitializedCommand builds the notification the peer sends, at most
// once per session, after receiving the handshake result.
func NewInitializedCommand(
	store *domain.StateStore,
	logger domain.Logger,
	hook InitializedHook,
) *NotificationCommand[struct{}] {
	desc := domain.CommandDescriptor{
		Name:           shared.OpInitialized,
		Description:    "acknowledges that the client observed the handshake result",
		ExpectedStates: []domain.Status{domain.StatusInitialized},
	}

	run := func(ctx context.Context, _ struct{}) error {
		if hook != nil {
			hook(ctx)
		}
		return nil
	}

	return NewNotificationCommand(desc, store, logger, run)
}

// NewShutdownCommand builds the request that moves the server into the
// ShuttingDown phase. Normal command traffic is refused afterwards; only
// the exit notification is expected.
func NewShutdownCommand(
	store *domain.StateStore,
	logger domain.Logger,
) *RequestCommand[struct{}, interface{}] {
	desc := domain.CommandDescriptor{
		Name:           shared.OpShutdown,
		Description:    "begins the orderly shutdown sequence",
		ExpectedStates: []domain.Status{domain.StatusInitialized},
	}

	run := func(ctx context.Context, _ struct{}) (interface{}, error) {
		if err := store.BeginShutdown(); err != nil {
			return nil, err
		}
		logger.Info("shutdown requested", nil)
		return nil, nil
	}

	return NewRequestCommand(desc, store, logger, run)
}

// NewExitCommand builds the notification that stops the server. The stop
// is clean only when a shutdown request preceded it, which the host maps
// to the process exit code.
func NewExitCommand(
	store *domain.StateStore,
	control domain.HostControl,
	logger domain.Logger,
) *NotificationCommand[struct{}] {
	desc := domain.CommandDescriptor{
		Name:        shared.OpExit,
		Description: "stops the server process",
	}

	run := func(ctx context.Context, _ struct{}) error {
		clean := store.Current().Status == domain.StatusShuttingDown
		if err := store.MarkStopped(); err != nil {
			logger.Warn("exit received after stop", domain.Fields{"error": err.Error()})
		}
		logger.Info("exit requested", domain.Fields{"clean": clean})
		control.RequestStop(clean)
		return nil
	}

	return NewNotificationCommand(desc, store, logger, run)
}
