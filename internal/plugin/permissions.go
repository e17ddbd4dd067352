package plugin

import (
	"fmt"

	"websearch/internal/domain"
)

// ValidatePermissions checks that every permission declared by the manifest
// is allowed and none are denied.
func ValidatePermissions(manifest domain.PluginManifest, allowed, denied []string) error {
	denySet := make(map[string]bool, len(denied))
	for _, d := range denied {
		denySet[d] = true
	}
	allowSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowSet[a] = true
	}

	for _, perm := range manifest.Permissions {
		if denySet[perm] {
			return domain.NewSubSystemError("plugin", "ValidatePermissions", domain.ErrPermissionDenied,
				fmt.Sprintf("plugin %q requests denied permission %q", manifest.Name, perm))
		}
		// With an allow list, only listed permissions pass.
		if len(allowSet) > 0 && !allowSet[perm] {
			return domain.NewSubSystemError("plugin", "ValidatePermissions", domain.ErrPermissionDenied,
				fmt.Sprintf("plugin %q requests unlisted permission %q", manifest.Name, perm))
		}
	}
	return nil
}
