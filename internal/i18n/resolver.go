package i18n

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
)

// DefaultKeyPrefixes are the namespaces the server may use for catalog keys.
var DefaultKeyPrefixes = []string{"notifications.", "errors."}

// Resolver turns server feedback into display text.
type Resolver struct {
	catalog  *Catalog
	prefixes []string
}

// NewResolver creates a Resolver. With no prefixes, DefaultKeyPrefixes apply.
func NewResolver(c *Catalog, prefixes ...string) *Resolver {
	if len(prefixes) == 0 {
		prefixes = DefaultKeyPrefixes
	}
	return &Resolver{catalog: c, prefixes: prefixes}
}

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() *Catalog { return r.catalog }

// IsKey reports whether s is treated as a catalog key: it translates to
// something other than itself, or it sits in a known key namespace.
func (r *Resolver) IsKey(tag language.Tag, s string) bool {
	if t, ok := r.catalog.Lookup(tag, s); ok && t != s {
		return true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Resolve renders msg for tag. An explicit IsKey from the server wins over
// the heuristic. Literal text is returned as is. An empty message yields "".
func (r *Resolver) Resolve(tag language.Tag, msg model.Message, params Params) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return ""
	}
	isKey := false
	if msg.IsKey != nil {
		isKey = *msg.IsKey
	} else {
		isKey = r.IsKey(tag, text)
	}
	if !isKey {
		return text
	}
	return r.catalog.T(tag, text, params)
}

// ResolveOr resolves msg, or translates fallbackKey when msg is empty.
func (r *Resolver) ResolveOr(tag language.Tag, msg model.Message, fallbackKey string, params Params) string {
	if s := r.Resolve(tag, msg, params); s != "" {
		return s
	}
	return r.catalog.T(tag, fallbackKey, params)
}

// T translates a known catalog key.
func (r *Resolver) T(tag language.Tag, key string, params Params) string {
	return r.catalog.T(tag, key, params)
}
