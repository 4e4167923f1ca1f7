package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/policyhub/internal/auditctx"
	"github.com/charlesng35/policyhub/pkg/logger"
)

// recordAudit logs the outcome of a change while tolerating audit failures.
// The actor is taken from the context.
func recordAudit(audit *AuditService, ctx context.Context, action, resource string, opErr error, metadata map[string]any) {
	if audit == nil {
		return
	}

	actor, _ := auditctx.FromContext(ctx)
	userID := actor.ID()
	entry := AuditEntry{
		UserID:    &userID,
		Username:  actor.Username,
		Action:    action,
		Resource:  resource,
		Result:    AuditResultSuccess,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Metadata:  metadata,
	}
	if opErr != nil {
		entry.Result = AuditResultFailure
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["error"] = opErr.Error()
	}

	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("failed to record audit entry",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.Error(err),
		)
	}
}

// actorID returns the id to record as assigned_by for the request's actor.
func actorID(ctx context.Context) string {
	actor, _ := auditctx.FromContext(ctx)
	return actor.ID()
}
