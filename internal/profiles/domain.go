// Package profiles resolves and stores public user profiles by DID.
package profiles

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Profile is the public display data for an account.
type Profile struct {
	DID         string    `json:"did"`
	Handle      string    `json:"handle,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NormalizeHandle folds a handle into its canonical stored form.
func NormalizeHandle(handle string) string {
	handle = norm.NFKC.String(strings.TrimSpace(handle))
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}

func uniqueDIDs(dids []string) []string {
	seen := make(map[string]struct{}, len(dids))
	out := make([]string, 0, len(dids))
	for _, did := range dids {
		did = strings.TrimSpace(did)
		if did == "" {
			continue
		}
		if _, ok := seen[did]; ok {
			continue
		}
		seen[did] = struct{}{}
		out = append(out, did)
	}
	return out
}
