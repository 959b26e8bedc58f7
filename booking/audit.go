package booking

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// writeAudit appends an audit entry after the primary mutation has committed.
// Failures are logged and swallowed; they never undo the mutation.
func writeAudit(ctx context.Context, audit AuditLog, log *zap.Logger, entry AuditEntry) {
	if audit == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := audit.Append(ctx, entry); err != nil {
		log.Warn("audit log write failed",
			zap.String("action", string(entry.Action)),
			zap.String("entity_kind", entry.EntityKind),
			zap.String("entity_id", entry.EntityID),
			zap.String("actor_id", entry.ActorID),
			zap.Error(err))
	}
}
