package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. Empty or "*" allows any origin,
	// unless AllowCredentials is set, in which case the request origin is
	// echoed instead of "*".
	AllowOrigins []string
	// AllowMethods defaults to the methods the catalog API serves.
	AllowMethods []string
	// AllowHeaders echoes the preflight's requested headers when empty.
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// MaxAge is in seconds; zero omits the header.
	MaxAge int
}

type corsPolicy struct {
	any         bool
	origins     map[string]string
	credentials bool
	methods     string
	headers     string
	expose      string
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		any:         len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     "GET, POST, OPTIONS",
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.any = true
			continue
		}
		p.origins[strings.ToLower(o)] = o
	}
	if len(cfg.AllowMethods) > 0 {
		p.methods = strings.Join(cfg.AllowMethods, ", ")
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not permitted.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.any && p.credentials:
		return origin
	case p.any:
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allow string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")
	if allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", p.methods)
		headers := p.headers
		if headers == "" {
			headers = r.Header.Get("Access-Control-Request-Headers")
		}
		if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// CORS answers preflight requests and decorates actual cross-origin
// responses.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, p.allowOrigin(origin))
				return
			}

			h := w.Header()
			if !p.any || p.credentials {
				h.Add("Vary", "Origin")
			}
			if origin != "" {
				if allow := p.allowOrigin(origin); allow != "" {
					h.Set("Access-Control-Allow-Origin", allow)
					if p.credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if p.expose != "" {
						h.Set("Access-Control-Expose-Headers", p.expose)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
