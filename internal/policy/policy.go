package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
)

// CheckCommandAllowed reports whether commandPath (without the binary name) is allowed by the
// allowlist. An entry ending in "*" allows every command under that prefix; "*" alone allows
// everything. An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		norm := normalize(allowed)
		if norm == normPath {
			return nil
		}
		if prefix, ok := strings.CutSuffix(norm, "*"); ok {
			prefix = strings.TrimSpace(prefix)
			if prefix == "" || normPath == prefix || strings.HasPrefix(normPath, prefix+" ") {
				return nil
			}
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy: "+normPath)
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
