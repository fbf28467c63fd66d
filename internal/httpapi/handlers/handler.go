package handlers

import (
	"context"

	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/config"
	"github.com/kryote/support-chat/internal/identity"
	"github.com/kryote/support-chat/internal/logger"
)

// TurnJobPublisher is what the async submit path needs from the queue.
type TurnJobPublisher interface {
	PublishTurnJob(ctx context.Context, jobID string) error
}

type Handler struct {
	Cfg      config.Config
	ChatSvc  *chat.Service
	Resolver *identity.Resolver
	Verifier identity.AssertionVerifier
	Rabbit   TurnJobPublisher
	Log      *logger.Logger
}

func NewHandler(cfg config.Config, chatSvc *chat.Service, resolver *identity.Resolver, verifier identity.AssertionVerifier, rabbit TurnJobPublisher, log *logger.Logger) *Handler {
	return &Handler{
		Cfg:      cfg,
		ChatSvc:  chatSvc,
		Resolver: resolver,
		Verifier: verifier,
		Rabbit:   rabbit,
		Log:      log.With("component", "httpapi"),
	}
}
