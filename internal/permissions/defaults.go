package permissions

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Role set names mirror user designations.
const (
	RoleCEO              = "CEO"
	RoleAdmin            = "Admin"
	RoleDCTrackerManager = "DC_Tracker_Manager"
	RoleRegularUser      = "Regular_User"
)

func allowAll(sid string, resources []string, actions ...Action) []Statement {
	return []Statement{{Sid: sid, Effect: EffectAllow, Actions: actions, Resources: resources}}
}

// PredefinedPolicies returns fresh copies of the built-in policies.
func PredefinedPolicies() []*Policy {
	challanResources := []string{ResourceDeliveryChallanAll, ResourceDeliveryChallanFile}
	return []*Policy{
		{
			ID: "AuthBasicAccess", Name: "Basic Authentication Access",
			Description: "Sign in, sign out, refresh tokens and read the current profile",
			Statements:  allowAll("BasicAuth", []string{ResourceAuthAll}, ActionAuthLogin, ActionAuthLogout, ActionAuthRefresh, ActionAuthMe),
		},
		{
			ID: "UserManager", Name: "User Management",
			Description: "Full control over users",
			Statements:  allowAll("UserManagement", []string{ResourceUserAll}, ActionUserCreate, ActionUserRead, ActionUserUpdate, ActionUserDelete, ActionUserList),
		},
		{
			ID: "UserReadOnly", Name: "User Read Only Access",
			Description: "View and list users",
			Statements:  allowAll("UserRead", []string{ResourceUserAll}, ActionUserRead, ActionUserList),
		},
		{
			ID: "ClientManager", Name: "Client Management",
			Description: "Full control over clients",
			Statements:  allowAll("ClientFullAccess", []string{ResourceClientAll}, ActionClientCreate, ActionClientRead, ActionClientUpdate, ActionClientDelete, ActionClientList),
		},
		{
			ID: "ClientReadOnly", Name: "Client Read Only Access",
			Description: "View and list clients",
			Statements:  allowAll("ClientRead", []string{ResourceClientAll}, ActionClientRead, ActionClientList),
		},
		{
			ID: "DeliveryChallanManager", Name: "Delivery Challan Manager",
			Description: "Full control over delivery challans and their files",
			Statements: allowAll("DeliveryChallanFullAccess", challanResources,
				ActionDeliveryChallanCreate, ActionDeliveryChallanRead, ActionDeliveryChallanUpdate, ActionDeliveryChallanDelete,
				ActionDeliveryChallanList, ActionDeliveryChallanUpload, ActionDeliveryChallanLinkInvoice),
		},
		{
			ID: "DeliveryChallanCreator", Name: "Delivery Challan Creator",
			Description: "Create and maintain delivery challans without deleting them",
			Statements: allowAll("DeliveryChallanCreateRead", challanResources,
				ActionDeliveryChallanCreate, ActionDeliveryChallanRead, ActionDeliveryChallanUpdate,
				ActionDeliveryChallanList, ActionDeliveryChallanUpload, ActionDeliveryChallanLinkInvoice),
		},
		{
			ID: "DeliveryChallanViewer", Name: "Delivery Challan Viewer",
			Description: "View and list delivery challans",
			Statements:  allowAll("DeliveryChallanRead", []string{ResourceDeliveryChallanAll}, ActionDeliveryChallanRead, ActionDeliveryChallanList),
		},
		{
			ID: "PermissionAdministrator", Name: "Permission System Administrator",
			Description: "Full control over policies, grants and assignments",
			Statements: allowAll("PermissionFullAccess", []string{ResourcePermissionsAll},
				ActionPermissionsCreate, ActionPermissionsRead, ActionPermissionsUpdate, ActionPermissionsDelete,
				ActionPermissionsList, ActionPermissionsAssign, ActionPermissionsUnassign, ActionPermissionsEvaluate),
		},
		{
			ID: "PermissionManager", Name: "Permission Manager",
			Description: "Assign and inspect permissions without editing policies",
			Statements: allowAll("PermissionManage", []string{ResourcePermissionsAll},
				ActionPermissionsRead, ActionPermissionsList, ActionPermissionsAssign, ActionPermissionsUnassign, ActionPermissionsEvaluate),
		},
	}
}

// RolePolicySets maps each role to the predefined policies it receives.
var RolePolicySets = map[string][]string{
	RoleCEO:              {"AuthBasicAccess", "UserManager", "ClientManager", "DeliveryChallanManager", "PermissionAdministrator"},
	RoleAdmin:            {"AuthBasicAccess", "UserManager", "ClientReadOnly", "DeliveryChallanManager", "PermissionManager"},
	RoleDCTrackerManager: {"AuthBasicAccess", "UserReadOnly", "ClientReadOnly", "DeliveryChallanManager"},
	RoleRegularUser:      {"AuthBasicAccess", "UserReadOnly", "ClientReadOnly", "DeliveryChallanViewer"},
}

// PredefinedResourcePermissions returns fresh copies of the built-in flat grants.
func PredefinedResourcePermissions() []*ResourcePermission {
	return []*ResourcePermission{
		{ID: "auth_basic_access", Resource: ResourceAuthAll, Category: "auth", Description: "Basic authentication access",
			Actions: []Action{ActionAuthLogin, ActionAuthLogout, ActionAuthRefresh, ActionAuthMe}},
		{ID: "user_full_access", Resource: ResourceUserAll, Category: "user", Description: "Full user management",
			Actions: []Action{ActionUserCreate, ActionUserRead, ActionUserUpdate, ActionUserDelete, ActionUserList}},
		{ID: "user_read_only", Resource: ResourceUserAll, Category: "user", Description: "Read only user access",
			Actions: []Action{ActionUserRead, ActionUserList}},
		{ID: "client_full_access", Resource: ResourceClientAll, Category: "client", Description: "Full client management",
			Actions: []Action{ActionClientCreate, ActionClientRead, ActionClientUpdate, ActionClientDelete, ActionClientList}},
		{ID: "client_read_only", Resource: ResourceClientAll, Category: "client", Description: "Read only client access",
			Actions: []Action{ActionClientRead, ActionClientList}},
		{ID: "delivery_challan_full_access", Resource: ResourceDeliveryChallanAll, Category: "delivery_challan", Description: "Full delivery challan management",
			Actions: []Action{ActionDeliveryChallanCreate, ActionDeliveryChallanRead, ActionDeliveryChallanUpdate, ActionDeliveryChallanDelete,
				ActionDeliveryChallanList, ActionDeliveryChallanUpload, ActionDeliveryChallanLinkInvoice}},
		{ID: "delivery_challan_read_only", Resource: ResourceDeliveryChallanAll, Category: "delivery_challan", Description: "Read only delivery challan access",
			Actions: []Action{ActionDeliveryChallanRead, ActionDeliveryChallanList}},
		{ID: "delivery_challan_file_access", Resource: ResourceDeliveryChallanFile, Category: "delivery_challan", Description: "Upload and read delivery challan files",
			Actions: []Action{ActionDeliveryChallanRead, ActionDeliveryChallanUpload}},
		{ID: "permissions_full_access", Resource: ResourcePermissionsAll, Category: "permissions", Description: "Full permission administration",
			Actions: []Action{ActionPermissionsCreate, ActionPermissionsRead, ActionPermissionsUpdate, ActionPermissionsDelete,
				ActionPermissionsList, ActionPermissionsAssign, ActionPermissionsUnassign, ActionPermissionsEvaluate}},
		{ID: "permissions_assign_only", Resource: ResourcePermissionsAll, Category: "permissions", Description: "Assign and inspect permissions",
			Actions: []Action{ActionPermissionsRead, ActionPermissionsList, ActionPermissionsAssign, ActionPermissionsUnassign, ActionPermissionsEvaluate}},
	}
}

// RoleResourceSets maps each role to the predefined resource permissions it receives.
var RoleResourceSets = map[string][]string{
	RoleCEO:              {"auth_basic_access", "user_full_access", "client_full_access", "delivery_challan_full_access", "delivery_challan_file_access", "permissions_full_access"},
	RoleAdmin:            {"auth_basic_access", "user_full_access", "client_read_only", "delivery_challan_full_access", "permissions_assign_only"},
	RoleDCTrackerManager: {"auth_basic_access", "user_read_only", "client_read_only", "delivery_challan_full_access"},
	RoleRegularUser:      {"auth_basic_access", "user_read_only", "client_read_only", "delivery_challan_read_only"},
}

// ResolveRole maps a designation onto a known role, case-insensitively.
// Unknown designations fall back to RoleRegularUser.
func ResolveRole(designation string) string {
	designation = strings.TrimSpace(designation)
	for role := range RolePolicySets {
		if strings.EqualFold(role, designation) {
			return role
		}
	}
	return RoleRegularUser
}

// SeedResult lists the built-ins created by a seed run.
type SeedResult struct {
	Policies            []string `json:"policies"`
	ResourcePermissions []string `json:"resource_permissions"`
}

// SeedPolicies installs the predefined policies that do not exist yet.
func (m *Manager) SeedPolicies(ctx context.Context) ([]string, error) {
	created := []string{}
	var errs error
	for _, policy := range PredefinedPolicies() {
		_, err := m.CreatePolicy(ctx, policy)
		switch {
		case err == nil:
			created = append(created, policy.ID)
		case errors.Is(err, ErrDuplicatePolicy):
		default:
			errs = multierr.Append(errs, err)
		}
	}
	return created, errs
}

// SeedResourcePermissions installs the predefined resource permissions that do not exist yet.
func (m *Manager) SeedResourcePermissions(ctx context.Context) ([]string, error) {
	created := []string{}
	var errs error
	for _, perm := range PredefinedResourcePermissions() {
		_, err := m.CreateResourcePermission(ctx, perm)
		switch {
		case err == nil:
			created = append(created, perm.ID)
		case errors.Is(err, ErrDuplicateResourcePermission):
		default:
			errs = multierr.Append(errs, err)
		}
	}
	return created, errs
}

// Seed installs every missing built-in for both models. It is idempotent.
func (m *Manager) Seed(ctx context.Context) (SeedResult, error) {
	policies, policyErr := m.SeedPolicies(ctx)
	perms, permErr := m.SeedResourcePermissions(ctx)
	result := SeedResult{Policies: policies, ResourcePermissions: perms}

	if err := multierr.Combine(policyErr, permErr); err != nil {
		return result, err
	}
	if len(policies)+len(perms) > 0 {
		m.log.Info("predefined permissions seeded",
			zap.Strings("policies", policies),
			zap.Strings("resource_permissions", perms),
		)
	}
	return result, nil
}

// RoleSetResult reports the outcome of assigning a role set.
type RoleSetResult struct {
	Role     string   `json:"role"`
	Assigned []string `json:"assigned"`
	Skipped  []string `json:"skipped"`
}

// AssignRoleSet assigns every policy of the role's set to the user, skipping
// the ones the user already holds.
func (m *Manager) AssignRoleSet(ctx context.Context, userID, role, assignedBy string) (*RoleSetResult, error) {
	role = ResolveRole(role)
	result := &RoleSetResult{Role: role, Assigned: []string{}, Skipped: []string{}}
	for _, policyID := range RolePolicySets[role] {
		_, err := m.AssignPolicy(ctx, AssignInput{
			UserID:     userID,
			TargetID:   policyID,
			AssignedBy: assignedBy,
			Notes:      role + " role assignment",
		})
		switch {
		case err == nil:
			result.Assigned = append(result.Assigned, policyID)
		case errors.Is(err, ErrDuplicateAssignment):
			result.Skipped = append(result.Skipped, policyID)
		default:
			return result, err
		}
	}
	return result, nil
}

// AssignResourceRoleSet assigns every resource permission of the role's set.
func (m *Manager) AssignResourceRoleSet(ctx context.Context, userID, role, assignedBy string) (*RoleSetResult, error) {
	role = ResolveRole(role)
	result := &RoleSetResult{Role: role, Assigned: []string{}, Skipped: []string{}}
	for _, permID := range RoleResourceSets[role] {
		_, err := m.AssignResourcePermission(ctx, AssignInput{
			UserID:     userID,
			TargetID:   permID,
			AssignedBy: assignedBy,
			Notes:      role + " role assignment",
		})
		switch {
		case err == nil:
			result.Assigned = append(result.Assigned, permID)
		case errors.Is(err, ErrDuplicateAssignment):
			result.Skipped = append(result.Skipped, permID)
		default:
			return result, err
		}
	}
	return result, nil
}

// RoleNames lists the known roles in a stable order.
func RoleNames() []string {
	out := make([]string, 0, len(RolePolicySets))
	for role := range RolePolicySets {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
