// Package events wires the gateway event stream to the protection components.
// Events are dispatched per kind (messages, membership, deletions); each event
// runs in its own goroutine with panic recovery so one bad event never takes
// down ingestion.
package events

import (
	"context"

	"github.com/TechitoonStudios/TechitoonGuardGo/internal/guardian"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/moderation"
	"github.com/TechitoonStudios/TechitoonGuardGo/internal/shadow"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/errors"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/gateway"
	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
)

// Feed receives a copy of every dispatched event, for the live ops feed.
// May be nil.
type Feed interface {
	Publish(kind string, payload interface{})
}

// Handlers groups the protection components fed by the dispatcher
type Handlers struct {
	Coordinator *moderation.Coordinator
	Guardian    *guardian.Guardian
	Shadow      *shadow.Cache
	Feed        Feed
}

// StartDispatch consumes the event stream until the context is cancelled.
// Blocking work in one group never delays events of another: every event is
// handled in its own goroutine.
func StartDispatch(ctx context.Context, stream *gateway.EventStream, h Handlers) {
	logger.System("📋 Iniciando despacho de eventos del gateway...", "Events")

	go dispatchMessages(ctx, stream, h)
	go dispatchMemberships(ctx, stream, h)
	go dispatchDeletions(ctx, stream, h)

	logger.Success("✅ Despachadores de eventos en marcha", "Events")
}

func dispatchMessages(ctx context.Context, stream *gateway.EventStream, h Handlers) {
	for {
		select {
		case msg, ok := <-stream.Messages:
			if !ok {
				return
			}
			go func() {
				defer errors.RecoverMiddleware()()
				// la copia sombra ocurre antes de cualquier moderación, para
				// que los borrados del propio bot nunca re-publiquen contenido
				h.Shadow.StoreMessage(ctx, msg)
				h.Coordinator.HandleMessage(ctx, msg)
				if h.Feed != nil {
					h.Feed.Publish("message", msg)
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

func dispatchMemberships(ctx context.Context, stream *gateway.EventStream, h Handlers) {
	for {
		select {
		case update, ok := <-stream.Memberships:
			if !ok {
				return
			}
			go func() {
				defer errors.RecoverMiddleware()()
				h.Guardian.HandleMembershipUpdate(ctx, update)
				if h.Feed != nil {
					h.Feed.Publish("membership", update)
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

func dispatchDeletions(ctx context.Context, stream *gateway.EventStream, h Handlers) {
	for {
		select {
		case del, ok := <-stream.Deletions:
			if !ok {
				return
			}
			go func() {
				defer errors.RecoverMiddleware()()
				h.Shadow.OnDeletionEvent(ctx, del)
				if h.Feed != nil {
					h.Feed.Publish("deletion", del)
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}
