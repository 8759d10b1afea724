package signal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// newOriginPolicy normalizes configured origins to scheme://host. "*"
// allows any origin.
func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
		case trimmed == "*":
			p.allowAll = true
		default:
			norm, ok := normalizeOrigin(trimmed)
			if !ok {
				log.Warn().Str("module", "signal").Str("origin", origin).Msg("ignoring invalid origin")
				continue
			}
			p.allowed[norm] = struct{}{}
		}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is the upgrader's CheckOrigin. Requests without an Origin header
// come from non-browser clients and are let through. With nothing
// configured only the page's own host may connect.
func (p originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	norm, ok := normalizeOrigin(header)
	if ok {
		if len(p.allowed) == 0 {
			if u, err := url.Parse(norm); err == nil && strings.EqualFold(u.Host, r.Host) {
				return true
			}
		} else if _, exists := p.allowed[norm]; exists {
			return true
		}
	}
	log.Warn().Str("module", "signal").Str("origin", header).Msg("blocked WebSocket connection from disallowed origin")
	return false
}
