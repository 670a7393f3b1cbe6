package engine

import (
	"context"

	"arbitrage/internal/confirm"
)

// confirmAdapter wraps internal/confirm's Manager to satisfy Confirmer,
// keeping this package free of the go-telegram-bot-api import surface.
type confirmAdapter struct {
	manager *confirm.Manager
}

// NewConfirmAdapter adapts a confirm.Manager for use as an Engine's
// Confirmer dependency.
func NewConfirmAdapter(manager *confirm.Manager) Confirmer {
	return &confirmAdapter{manager: manager}
}

func (a *confirmAdapter) Request(ctx context.Context, req ConfirmRequest) ConfirmResponse {
	result := a.manager.Request(ctx, confirm.Request{
		ID:            req.ID,
		Prompt:        req.Prompt,
		Options:       req.Options,
		DefaultOption: req.DefaultOption,
	})
	return ConfirmResponse{Action: result.Action, Source: string(result.Source)}
}

func (a *confirmAdapter) Notify(ctx context.Context, message string, severity string) {
	a.manager.Notify(ctx, message, confirm.Severity(severity))
}
