package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"session:create",
		"session:answer",
		"session:view-own",
		"session:close",
		"progress:view-own",
		"progress:reset-own",
		"review:view",
		"feedback:create",
		"stats:view",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
