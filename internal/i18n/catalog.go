// Package i18n holds the translation catalog and resolves server feedback
// into localized notification text.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Params are interpolation values for {{name}} placeholders.
type Params map[string]string

// Catalog maps locale → flattened dotted key → template.
type Catalog struct {
	fallback language.Tag
	tags     []language.Tag
	matcher  language.Matcher
	messages map[string]map[string]string
}

// Load builds a Catalog from the embedded locale files.
func Load(fallback string) (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	sources := make(map[string][]byte, len(entries))
	for _, e := range entries {
		b, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", e.Name(), err)
		}
		sources[strings.TrimSuffix(e.Name(), path.Ext(e.Name()))] = b
	}
	return NewCatalog(fallback, sources)
}

// NewCatalog parses YAML sources keyed by BCP 47 tag. The fallback locale
// must be among them.
func NewCatalog(fallback string, sources map[string][]byte) (*Catalog, error) {
	fb, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("parse fallback locale %q: %w", fallback, err)
	}
	c := &Catalog{fallback: fb, messages: make(map[string]map[string]string, len(sources))}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	// The fallback goes first so the matcher defaults to it.
	c.tags = append(c.tags, fb)
	for _, name := range names {
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", name, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(sources[name], &doc); err != nil {
			return nil, fmt.Errorf("decode locale %q: %w", name, err)
		}
		flat := make(map[string]string)
		flatten("", doc, flat)
		c.messages[tag.String()] = flat
		if tag.String() != fb.String() {
			c.tags = append(c.tags, tag)
		}
	}
	if _, ok := c.messages[fb.String()]; !ok {
		return nil, fmt.Errorf("fallback locale %q has no catalog", fallback)
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Fallback returns the default locale.
func (c *Catalog) Fallback() language.Tag { return c.fallback }

// Tags returns the supported locales, fallback first.
func (c *Catalog) Tags() []language.Tag { return append([]language.Tag(nil), c.tags...) }

// Match picks the best supported locale for the given preferences, each of
// which may be a tag or an Accept-Language header. Empty preferences are
// skipped; no usable preference yields the fallback.
func (c *Catalog) Match(prefs ...string) language.Tag {
	var want []language.Tag
	for _, p := range prefs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		want = append(want, tags...)
	}
	if len(want) == 0 {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(want...)
	if conf == language.No {
		return c.fallback
	}
	return c.tags[idx]
}

// Lookup returns the template for key in tag, falling back to the default
// locale.
func (c *Catalog) Lookup(tag language.Tag, key string) (string, bool) {
	if m, ok := c.messages[c.Match(tag.String()).String()]; ok {
		if s, ok := m[key]; ok {
			return s, true
		}
	}
	s, ok := c.messages[c.fallback.String()][key]
	return s, ok
}

// T translates key with params. A missing key renders as the key itself.
func (c *Catalog) T(tag language.Tag, key string, params Params) string {
	s, ok := c.Lookup(tag, key)
	if !ok {
		return key
	}
	return interpolate(s, params)
}

func interpolate(s string, params Params) string {
	if len(params) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
