package permissions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/policyhub/internal/database/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// forEachStore runs fn against the in-memory store and the gorm store on sqlite.
func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("gorm", func(t *testing.T) {
		db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
		store, err := NewGormStore(db)
		require.NoError(t, err)
		fn(t, store)
	})
}

func newTestManager(t *testing.T, store Store, clock *fakeClock, opts ...ManagerOption) *Manager {
	t.Helper()

	opts = append([]ManagerOption{WithClock(clock.Now)}, opts...)
	manager, err := NewManager(store, opts...)
	require.NoError(t, err)
	return manager
}

func clientReadOnlyPolicy() *Policy {
	return &Policy{
		ID:   "ClientReadOnly",
		Name: "Client Read Only Access",
		Statements: []Statement{{
			Sid:       "ClientRead",
			Effect:    EffectAllow,
			Actions:   []Action{ActionClientRead, ActionClientList},
			Resources: []string{"client:*"},
		}},
	}
}

func clientManagerPolicy() *Policy {
	return &Policy{
		ID:   "ClientManager",
		Name: "Client Management",
		Statements: []Statement{{
			Sid:       "ClientFullAccess",
			Effect:    EffectAllow,
			Actions:   []Action{ActionClientCreate, ActionClientRead, ActionClientUpdate, ActionClientDelete, ActionClientList},
			Resources: []string{"client:*"},
		}},
	}
}

func denyDeletesPolicy() *Policy {
	return &Policy{
		ID:   "DenyDeletes",
		Name: "Deny Client Deletes",
		Statements: []Statement{{
			Sid:       "NoDelete",
			Effect:    EffectDeny,
			Actions:   []Action{ActionClientDelete},
			Resources: []string{"client:*"},
		}},
	}
}

func mustCreatePolicies(t *testing.T, m *Manager, policies ...*Policy) {
	t.Helper()
	for _, p := range policies {
		_, err := m.CreatePolicy(context.Background(), p)
		require.NoError(t, err)
	}
}

func mustAssign(t *testing.T, m *Manager, userID, policyID string) *PolicyAssignment {
	t.Helper()
	a, err := m.AssignPolicy(context.Background(), AssignInput{UserID: userID, TargetID: policyID, AssignedBy: "admin"})
	require.NoError(t, err)
	return a
}

func request(userID string, action Action, resource string) Request {
	return Request{UserID: userID, Action: action, Resource: resource}
}
