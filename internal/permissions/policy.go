package permissions

// policy is the complete role to action table. Anything absent is denied.
var policy = map[Role]map[Action]bool{
	RoleUser: {},
	RoleMod: {
		ActionPostDelete:  true,
		ActionPostRestore: true,
		ActionUserBan:     true,
		ActionUserUnban:   true,
	},
	RoleAdmin: {
		ActionPostDelete:  true,
		ActionPostRestore: true,
		ActionUserBan:     true,
		ActionUserUnban:   true,
		ActionModPromote:  true,
		ActionModDemote:   true,
	},
}

// IsAllowed reports whether role may perform action.
func IsAllowed(role Role, action Action) bool {
	return policy[role][action]
}
