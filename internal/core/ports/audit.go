package ports

import (
	"context"

	"github.com/learnhub/identity-service/internal/core/domain"
)

// AuthEventPublisher accepts audit events without blocking the caller.
type AuthEventPublisher interface {
	Publish(event domain.AuthEvent)
}

// AuthEventRepository persists audit events.
type AuthEventRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}
