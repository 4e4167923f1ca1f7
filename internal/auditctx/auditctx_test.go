package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithActor(context.Background(), Actor{UserID: "u-1", Username: "alice"})
	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u-1", actor.ID())
	require.Equal(t, "alice", actor.Username)
}

func TestActorIDFallsBackToSystem(t *testing.T) {
	require.Equal(t, SystemUser, Actor{}.ID())
	require.Equal(t, SystemUser, Actor{UserID: "  "}.ID())
}
