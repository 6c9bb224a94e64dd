package env

import (
	"net/url"
	"strings"
)

// RedactAPIKey masks an API key, showing only the first 4 and last 4
// characters.
func RedactAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// RedactURL masks credentials in a URL string: the userinfo
// password and a key query parameter.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.User != nil {
		password, hasPassword := u.User.Password()
		if hasPassword {
			u.User = url.UserPassword(u.User.Username(), RedactAPIKey(password))
		}
	}
	if q := u.Query(); q.Has("key") {
		q.Set("key", RedactAPIKey(q.Get("key")))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ValidateAPIKeyFormat checks if an API key matches the provider's
// known format. Keys for other providers are accepted when at
// least 20 characters long.
func ValidateAPIKeyFormat(provider, key string) bool {
	if key == "" {
		return false
	}
	switch strings.ToLower(provider) {
	case "gemini", "google":
		return strings.HasPrefix(key, "AIza") && len(key) >= 30
	case "openai":
		if strings.HasPrefix(key, "sk-") {
			return true
		}
	}
	return len(key) >= 20
}
