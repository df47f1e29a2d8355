package ports

import (
	"context"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Notifier presenta las señales de un scan al usuario.
type Notifier interface {
	// NotifySignals muestra las señales ya ordenadas por score.
	NotifySignals(ctx context.Context, signals []domain.Signal) error
}

// SignalPublisher emite eventos de señales para colaboradores externos.
type SignalPublisher interface {
	PublishCreated(ctx context.Context, signal domain.Signal) error
	PublishSettled(ctx context.Context, signal domain.Signal) error
	Close() error
}
