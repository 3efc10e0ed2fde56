package profiles

import (
	"net/url"
	"strings"
)

const identiconBaseURL = "https://api.dicebear.com/7.x/bottts/svg"

// AvatarURL returns the stored avatar when present, otherwise a deterministic
// identicon seeded with the username.
func AvatarURL(stored, seed string) string {
	if trimmed := strings.TrimSpace(stored); trimmed != "" {
		return trimmed
	}
	return identiconBaseURL + "?seed=" + url.QueryEscape(seed)
}
