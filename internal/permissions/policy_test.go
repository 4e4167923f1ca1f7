package permissions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyValidate(t *testing.T) {
	valid := clientReadOnlyPolicy()
	valid.Normalize()
	require.NoError(t, valid.Validate())
	require.Equal(t, DefaultPolicyVersion, valid.Version)

	cases := map[string]func(p *Policy){
		"missing id":        func(p *Policy) { p.ID = "" },
		"missing name":      func(p *Policy) { p.Name = "" },
		"no statements":     func(p *Policy) { p.Statements = nil },
		"bad effect":        func(p *Policy) { p.Statements[0].Effect = "Maybe" },
		"no actions":        func(p *Policy) { p.Statements[0].Actions = nil },
		"unknown action":    func(p *Policy) { p.Statements[0].Actions = []Action{"client:explode"} },
		"no resources":      func(p *Policy) { p.Statements[0].Resources = nil },
		"mid-star resource": func(p *Policy) { p.Statements[0].Resources = []string{"client:*:invoice"} },
		"duplicate sid": func(p *Policy) {
			p.Statements = append(p.Statements, p.Statements[0].Clone())
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := clientReadOnlyPolicy()
			mutate(p)
			p.Normalize()
			err := p.Validate()
			require.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestPolicyCloneIsDeep(t *testing.T) {
	p := clientReadOnlyPolicy()
	p.Statements[0].Conditions = map[string]any{"expr": "true"}

	cp := p.Clone()
	cp.Statements[0].Actions[0] = ActionClientDelete
	cp.Statements[0].Resources[0] = "user:*"
	cp.Statements[0].Conditions["expr"] = "false"

	require.Equal(t, ActionClientRead, p.Statements[0].Actions[0])
	require.Equal(t, "client:*", p.Statements[0].Resources[0])
	require.Equal(t, "true", p.Statements[0].Conditions["expr"])
}

func TestPolicyPatchApply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := clientReadOnlyPolicy()
	p.CreatedAt, p.UpdatedAt = created, created

	require.True(t, PolicyPatch{}.Empty())

	name := "Renamed"
	now := created.Add(time.Hour)
	out := PolicyPatch{Name: &name}.Apply(p, now)

	require.Equal(t, "Renamed", out.Name)
	require.Equal(t, p.Statements, out.Statements)
	require.Equal(t, created, out.CreatedAt)
	require.Equal(t, now, out.UpdatedAt)
	require.Equal(t, "Client Read Only Access", p.Name)
}

func TestStatementApplies(t *testing.T) {
	stmt := clientReadOnlyPolicy().Statements[0]
	require.True(t, stmt.Applies(ActionClientList, "client:9"))
	require.False(t, stmt.Applies(ActionClientDelete, "client:9"))
	require.False(t, stmt.Applies(ActionClientRead, "user:9"))
}

func TestAssignmentEffective(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)

	a := Assignment{Active: true}
	require.True(t, a.Effective(now))

	a.ExpiresAt = &past
	require.True(t, a.Expired(now))
	require.False(t, a.Effective(now))

	a.ExpiresAt = &now
	require.False(t, a.Expired(now), "expiry equal to now is still effective")

	a.Active = false
	require.False(t, a.Effective(now))
}

func TestParseView(t *testing.T) {
	v, err := ParseView("")
	require.NoError(t, err)
	require.Equal(t, ViewEffective, v)

	v, err = ParseView("ALL")
	require.NoError(t, err)
	require.Equal(t, ViewAll, v)

	_, err = ParseView("recent")
	require.ErrorIs(t, err, ErrInvalidRequest)
}
