package auditctx

import (
	"context"
	"strings"
)

// SystemUser names the actor for work started by the server itself, such as
// scheduled sweeps and startup seeding.
const SystemUser = "system"

// Actor identifies who initiated a change to policies, grants or assignments.
type Actor struct {
	UserID      string
	Username    string
	Designation string
	IPAddress   string
	UserAgent   string
}

// ID returns the actor's user id, or SystemUser when none is known.
func (a Actor) ID() string {
	if id := strings.TrimSpace(a.UserID); id != "" {
		return id
	}
	return SystemUser
}

type actorContextKey struct{}

// WithActor stores actor metadata on the context for the service layer.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
