package reconcile

import "runtime/debug"

// Version resolves the cache-busting version of the card bundle: the
// configured value, else the main module version from the build info,
// else "0".
func Version(configured string) string {
	if configured != "" {
		return configured
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "0"
}
