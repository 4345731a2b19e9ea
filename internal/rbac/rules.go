package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"attempt:start",
		"attempt:submit",
		"attempt:result",
		"attempt:view-own",
	},
	"teacher": {
		"attempt:result",
		"attempt:view-own",
		"attempt:view-all",
	},
	"admin": {
		"*", // everything
	},
}
