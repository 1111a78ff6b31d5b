package interfaces

import (
	"context"

	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// ParticipantAuditStore records participant lifecycle facts for an external
// persistence layer. Callers emit asynchronously and never depend on the
// store's success.
type ParticipantAuditStore interface {
	RecordParticipantEvent(ctx context.Context, event *types.ParticipantEvent) error
}
