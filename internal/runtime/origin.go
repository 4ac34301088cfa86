package runtime

import (
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may talk to the daemon. Requests
// without an Origin header come from non-browser clients and are accepted.
type originPolicy struct {
	allowed map[string]struct{}
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		if o = normalizeOrigin(o); o != "" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

// Allow accepts a missing Origin, one whose host matches the request host, or an
// allowlisted origin.
func (p originPolicy) Allow(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

// Guard rejects state-changing requests from foreign origins with 403.
func (p originPolicy) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !p.Allow(r) {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "origin not allowed"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func normalizeOrigin(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
