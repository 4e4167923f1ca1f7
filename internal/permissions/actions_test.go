package permissions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogueContainsBuiltInActions(t *testing.T) {
	for _, action := range []Action{ActionAuthLogin, ActionClientDelete, ActionDeliveryChallanLinkInvoice, ActionPermissionsEvaluate} {
		require.True(t, IsRegisteredAction(action), "expected %s to be registered", action)
	}

	def, ok := LookupAction(ActionClientRead)
	require.True(t, ok)
	require.Equal(t, "View a client", def.Description)
}

func TestActionDomainAndVerb(t *testing.T) {
	require.Equal(t, "delivery_challan", ActionDeliveryChallanLinkInvoice.Domain())
	require.Equal(t, "link_invoice", ActionDeliveryChallanLinkInvoice.Verb())
}

func TestActionsByDomain(t *testing.T) {
	require.ElementsMatch(t, []Action{
		ActionClientCreate, ActionClientRead, ActionClientUpdate, ActionClientDelete, ActionClientList,
	}, ActionsByDomain("client"))
	require.Empty(t, ActionsByDomain("invoice"))
}

func TestRegisterActionValidation(t *testing.T) {
	require.ErrorIs(t, RegisterAction(nil), errNilAction)
	require.ErrorIs(t, RegisterAction(&ActionDefinition{ID: "noverb"}), errMalformedAction)
	require.ErrorIs(t, RegisterAction(&ActionDefinition{ID: "client:*"}), errMalformedAction)
	require.ErrorIs(t, RegisterAction(&ActionDefinition{ID: ActionClientRead}), errDuplicateAction)

	require.NoError(t, RegisterAction(&ActionDefinition{ID: " report:export ", Description: "Export reports"}))
	require.True(t, IsRegisteredAction("report:export"))
}

func TestParseAction(t *testing.T) {
	action, err := ParseAction(" client:read ")
	require.NoError(t, err)
	require.Equal(t, ActionClientRead, action)

	_, err = ParseAction("client:explode")
	require.True(t, errors.Is(err, ErrUnknownAction))

	_, err = ParseAction("client")
	require.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestAllActionsSorted(t *testing.T) {
	all := AllActions()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		require.Less(t, string(all[i-1].ID), string(all[i].ID))
	}
}
