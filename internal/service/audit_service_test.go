package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/playlist-gateway/internal/events"
)

func TestAuditServiceLogsLifecycleEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	audit := NewAuditService(dispatcher, zap.New(core))
	audit.RegisterHandlers()

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventUserLoggedIn, "u1", nil)))
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventSessionReplaced, "u1",
		events.SessionReplacedPayload{PreviousSession: events.SessionFingerprint("session-zero")})))

	entries := logs.FilterMessage("audit").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "user_logged_in", entries[0].ContextMap()["event_type"])
	assert.Equal(t, "session_replaced", entries[1].ContextMap()["event_type"])
	assert.Equal(t, "u1", entries[1].ContextMap()["subject_id"])
	assert.NotContains(t, fmt.Sprint(entries[1].ContextMap()), "session-zero")

	audit.Close()
	require.NoError(t, dispatcher.Publish(ctx, events.NewEvent(events.EventUserLoggedOut, "u1", nil)))
	assert.Equal(t, 2, logs.FilterMessage("audit").Len())
}
