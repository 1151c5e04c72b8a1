package observability

import "unicode"

// Log field limits. Routes are templates so they stay short; user IDs are
// Firebase UIDs capped well under 64 runes.
const (
	routeFieldLimit  = 180
	methodFieldLimit = 10
	userFieldLimit   = 64
)

// sanitizeString strips control characters and caps length so attacker
// supplied values cannot forge additional log lines.
func sanitizeString(value string, limit int) string {
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if limit > 0 && len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

func sanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeFieldLimit)
}

func sanitizeMethod(method string) string {
	return sanitizeString(method, methodFieldLimit)
}

func sanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, userFieldLimit)
}
