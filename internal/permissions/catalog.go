package permissions

// Registered action tokens.
const (
	ActionAuthLogin   Action = "auth:login"
	ActionAuthLogout  Action = "auth:logout"
	ActionAuthRefresh Action = "auth:refresh"
	ActionAuthMe      Action = "auth:me"

	ActionUserCreate Action = "user:create"
	ActionUserRead   Action = "user:read"
	ActionUserUpdate Action = "user:update"
	ActionUserDelete Action = "user:delete"
	ActionUserList   Action = "user:list"

	ActionClientCreate Action = "client:create"
	ActionClientRead   Action = "client:read"
	ActionClientUpdate Action = "client:update"
	ActionClientDelete Action = "client:delete"
	ActionClientList   Action = "client:list"

	ActionDeliveryChallanCreate      Action = "delivery_challan:create"
	ActionDeliveryChallanRead        Action = "delivery_challan:read"
	ActionDeliveryChallanUpdate      Action = "delivery_challan:update"
	ActionDeliveryChallanDelete      Action = "delivery_challan:delete"
	ActionDeliveryChallanList        Action = "delivery_challan:list"
	ActionDeliveryChallanUpload      Action = "delivery_challan:upload"
	ActionDeliveryChallanLinkInvoice Action = "delivery_challan:link_invoice"

	ActionPermissionsCreate   Action = "permissions:create"
	ActionPermissionsRead     Action = "permissions:read"
	ActionPermissionsUpdate   Action = "permissions:update"
	ActionPermissionsDelete   Action = "permissions:delete"
	ActionPermissionsList     Action = "permissions:list"
	ActionPermissionsAssign   Action = "permissions:assign"
	ActionPermissionsUnassign Action = "permissions:unassign"
	ActionPermissionsEvaluate Action = "permissions:evaluate"
)

// Well-known resource patterns.
const (
	ResourceAuthAll             = "auth:*"
	ResourceUserAll             = "user:*"
	ResourceClientAll           = "client:*"
	ResourceDeliveryChallanAll  = "delivery_challan:*"
	ResourceDeliveryChallanFile = "delivery_challan:file"
	ResourcePermissionsAll      = "permissions:*"
)

func init() {
	defs := []*ActionDefinition{
		{ID: ActionAuthLogin, Description: "Sign in"},
		{ID: ActionAuthLogout, Description: "Sign out"},
		{ID: ActionAuthRefresh, Description: "Refresh an access token"},
		{ID: ActionAuthMe, Description: "Read the current principal"},

		{ID: ActionUserCreate, Description: "Create users"},
		{ID: ActionUserRead, Description: "View a user"},
		{ID: ActionUserUpdate, Description: "Edit users"},
		{ID: ActionUserDelete, Description: "Delete users"},
		{ID: ActionUserList, Description: "List users"},

		{ID: ActionClientCreate, Description: "Create clients"},
		{ID: ActionClientRead, Description: "View a client"},
		{ID: ActionClientUpdate, Description: "Edit clients"},
		{ID: ActionClientDelete, Description: "Delete clients"},
		{ID: ActionClientList, Description: "List clients"},

		{ID: ActionDeliveryChallanCreate, Description: "Create delivery challans"},
		{ID: ActionDeliveryChallanRead, Description: "View a delivery challan"},
		{ID: ActionDeliveryChallanUpdate, Description: "Edit delivery challans"},
		{ID: ActionDeliveryChallanDelete, Description: "Delete delivery challans"},
		{ID: ActionDeliveryChallanList, Description: "List delivery challans"},
		{ID: ActionDeliveryChallanUpload, Description: "Upload delivery challan files"},
		{ID: ActionDeliveryChallanLinkInvoice, Description: "Link an invoice to a delivery challan"},

		{ID: ActionPermissionsCreate, Description: "Create policies and resource permissions"},
		{ID: ActionPermissionsRead, Description: "View policies, grants and assignments"},
		{ID: ActionPermissionsUpdate, Description: "Edit policies and run maintenance"},
		{ID: ActionPermissionsDelete, Description: "Delete policies and resource permissions"},
		{ID: ActionPermissionsList, Description: "List policies and resource permissions"},
		{ID: ActionPermissionsAssign, Description: "Assign grants to users"},
		{ID: ActionPermissionsUnassign, Description: "Revoke grants from users"},
		{ID: ActionPermissionsEvaluate, Description: "Evaluate permissions on behalf of other users"},
	}

	for _, def := range defs {
		if err := RegisterAction(def); err != nil {
			panic(err)
		}
	}
}
