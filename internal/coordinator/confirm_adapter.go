package coordinator

import (
	"context"

	"arbitrage/internal/confirm"
)

// confirmNotifier adapts internal/confirm's Manager to Notifier, since
// Manager.Notify takes a confirm.Severity rather than a bare string.
type confirmNotifier struct {
	manager *confirm.Manager
}

// NotifierFromConfirm wraps a confirm.Manager for use as a
// Coordinator's Notifier, keeping this package's own interface free of
// the confirm.Severity type.
func NotifierFromConfirm(manager *confirm.Manager) Notifier {
	return &confirmNotifier{manager: manager}
}

func (n *confirmNotifier) Notify(ctx context.Context, message string, severity string) {
	n.manager.Notify(ctx, message, confirm.Severity(severity))
}
