package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the caller's role as carried in the token.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleViewer  Role = "viewer"
)

// AllRoles returns every known role in privilege order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUser, RoleViewer}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalizes a role claim to its canonical lower-case form.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q, valid roles: %s", value, strings.Join(roleNames(), ", "))
	}
	return role, nil
}

func roleNames() []string {
	roles := AllRoles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}

// ResourceType identifies a protected resource family.
type ResourceType string

const (
	ResourceProducts  ResourceType = "products"
	ResourceProviders ResourceType = "providers"
	ResourceUsers     ResourceType = "users"
	ResourceHealth    ResourceType = "health"
	ResourceAuth      ResourceType = "auth"
	ResourceAll       ResourceType = "*"
)

// AllResources returns every concrete resource (ResourceAll excluded).
func AllResources() []ResourceType {
	return []ResourceType{ResourceProducts, ResourceProviders, ResourceUsers, ResourceHealth, ResourceAuth}
}

func (r ResourceType) Valid() bool {
	switch r {
	case ResourceProducts, ResourceProviders, ResourceUsers, ResourceHealth, ResourceAuth, ResourceAll:
		return true
	}
	return false
}

// ActionType is an operation on a resource.
type ActionType string

const (
	ActionCreate  ActionType = "create"
	ActionRead    ActionType = "read"
	ActionUpdate  ActionType = "update"
	ActionDelete  ActionType = "delete"
	ActionExecute ActionType = "execute"
	ActionAll     ActionType = "*"
)

// AllActions returns every concrete action (ActionAll excluded).
func AllActions() []ActionType {
	return []ActionType{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute}
}

func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute, ActionAll:
		return true
	}
	return false
}

// ActionForMethod maps an HTTP method to the action it performs.
func ActionForMethod(method string) (ActionType, bool) {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return ActionRead, true
	case "POST":
		return ActionCreate, true
	case "PUT", "PATCH":
		return ActionUpdate, true
	case "DELETE":
		return ActionDelete, true
	}
	return "", false
}

// Grants lists the actions a role may perform per resource.
type Grants map[ResourceType][]ActionType

// PermissionTable is the read-only role → resource → actions lookup.
// It is never mutated after NewPermissionTable returns.
type PermissionTable struct {
	grants map[Role]map[ResourceType]map[ActionType]bool
}

// DefaultGrants is the policy for the inventory services.
func DefaultGrants() map[Role]Grants {
	return map[Role]Grants{
		RoleAdmin: {
			ResourceAll: {ActionAll},
		},
		RoleManager: {
			ResourceProducts:  {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
			ResourceProviders: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
			ResourceUsers:     {ActionRead, ActionUpdate},
			ResourceHealth:    {ActionRead},
			ResourceAuth:      {ActionRead, ActionExecute},
		},
		RoleUser: {
			ResourceProducts:  {ActionCreate, ActionRead, ActionUpdate},
			ResourceProviders: {ActionRead},
			ResourceUsers:     {ActionRead},
			ResourceHealth:    {ActionRead},
			ResourceAuth:      {ActionRead},
		},
		RoleViewer: {
			ResourceProducts:  {ActionRead},
			ResourceProviders: {ActionRead},
			ResourceHealth:    {ActionRead},
			ResourceAuth:      {ActionRead},
		},
	}
}

// NewPermissionTable builds the lookup. Every role must be present and every
// resource/action must belong to its closed set.
func NewPermissionTable(grants map[Role]Grants) (*PermissionTable, error) {
	for _, role := range AllRoles() {
		if _, ok := grants[role]; !ok {
			return nil, fmt.Errorf("permission table: role %q has no entry", role)
		}
	}

	table := &PermissionTable{grants: make(map[Role]map[ResourceType]map[ActionType]bool, len(grants))}
	for role, resources := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("permission table: unknown role %q", role)
		}
		byResource := make(map[ResourceType]map[ActionType]bool, len(resources))
		for res, actions := range resources {
			if !res.Valid() {
				return nil, fmt.Errorf("permission table: role %q: unknown resource %q", role, res)
			}
			set := make(map[ActionType]bool, len(actions))
			for _, act := range actions {
				if !act.Valid() {
					return nil, fmt.Errorf("permission table: role %q resource %q: unknown action %q", role, res, act)
				}
				set[act] = true
			}
			byResource[res] = set
		}
		table.grants[role] = byResource
	}
	return table, nil
}

// MustPermissionTable is NewPermissionTable for static tables; it panics on error.
func MustPermissionTable(grants map[Role]Grants) *PermissionTable {
	t, err := NewPermissionTable(grants)
	if err != nil {
		panic(err)
	}
	return t
}

// Allows reports whether role may perform action on resource.
// Wildcards on either side of the grant match.
func (t *PermissionTable) Allows(role Role, resource ResourceType, action ActionType) bool {
	if role == RoleAdmin {
		return true
	}
	byResource, ok := t.grants[role]
	if !ok {
		return false
	}
	for _, res := range []ResourceType{resource, ResourceAll} {
		actions, ok := byResource[res]
		if !ok {
			continue
		}
		if actions[action] || actions[ActionAll] {
			return true
		}
	}
	return false
}

// Check evaluates an AccessRequest.
func (t *PermissionTable) Check(req AccessRequest) bool {
	return t.Allows(req.Role, req.Resource, req.Action)
}

// Enumerate expands the role's grants into resource → sorted actions.
// Wildcards are expanded to the concrete resources and actions.
func (t *PermissionTable) Enumerate(role Role) map[ResourceType][]ActionType {
	out := make(map[ResourceType][]ActionType)
	for _, res := range AllResources() {
		var actions []ActionType
		for _, act := range AllActions() {
			if t.Allows(role, res, act) {
				actions = append(actions, act)
			}
		}
		if len(actions) > 0 {
			sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
			out[res] = actions
		}
	}
	return out
}
