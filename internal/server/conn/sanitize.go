package conn

import (
	"path/filepath"
	"strings"
)

// sanitizeFilename reduces name to its last path component and reports
// whether that reduction is safe to hand to filex. A name that contains a
// path separator before reduction, or that reduces to empty, ".", or
// "..", is rejected outright rather than silently replaced — a crafted
// offer like "../../etc/passwd" or "a/b" must never reach the staging
// directory under any name at all.
func sanitizeFilename(name string) (string, bool) {
	if strings.ContainsAny(name, "/\\") {
		return "", false
	}

	clean := filepath.Base(filepath.Clean(name))
	switch clean {
	case "", ".", "..", string(filepath.Separator):
		return "", false
	default:
		return clean, true
	}
}
