package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/playlist-gateway/internal/events"
)

// AuditService writes session lifecycle events to the audit log.
type AuditService struct {
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	unsubscribe []func()
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to every session lifecycle event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventUserLoggedIn,
		events.EventUserLoggedOut,
		events.EventSessionReplaced,
	} {
		a.unsubscribe = append(a.unsubscribe, a.dispatcher.Subscribe(eventType, a.handle))
	}
}

// Close removes the subscriptions made by RegisterHandlers.
func (a *AuditService) Close() {
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.unsubscribe = nil
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	a.logger.Info("audit",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("subject_id", event.SubjectID),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload))
	return nil
}
