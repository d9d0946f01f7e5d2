package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load("fr")
	require.NoError(t, err)
	assert.Equal(t, language.French, c.Fallback())
	assert.Len(t, c.Tags(), 2)

	s, ok := c.Lookup(language.English, "notifications.loading")
	require.True(t, ok)
	assert.Equal(t, "Loading data...", s)
}

func TestEmbeddedLocalesHaveSameKeys(t *testing.T) {
	c, err := Load("fr")
	require.NoError(t, err)
	en := c.messages["en"]
	fr := c.messages["fr"]
	require.NotEmpty(t, en)
	for k := range en {
		_, ok := fr[k]
		assert.True(t, ok, "fr missing %s", k)
	}
	for k := range fr {
		_, ok := en[k]
		assert.True(t, ok, "en missing %s", k)
	}
}

func TestMatch(t *testing.T) {
	c, err := Load("fr")
	require.NoError(t, err)
	assert.Equal(t, "en", c.Match("en-US,en;q=0.9").String())
	assert.Equal(t, "fr", c.Match("", "fr-CA").String())
	assert.Equal(t, "fr", c.Match("de-DE").String())
	assert.Equal(t, "fr", c.Match().String())
	assert.Equal(t, "en", c.Match("", "", "en").String())
}

func TestLookupFallsBackToDefaultLocale(t *testing.T) {
	c, err := NewCatalog("en", map[string][]byte{
		"en": []byte("greeting: Hello {{name}}\nonly:\n  en: english"),
		"fr": []byte("greeting: Bonjour {{name}}"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour Ada", c.T(language.French, "greeting", Params{"name": "Ada"}))
	assert.Equal(t, "english", c.T(language.French, "only.en", nil))
	assert.Equal(t, "missing.key", c.T(language.French, "missing.key", nil))
}

func TestNewCatalogRequiresFallbackSource(t *testing.T) {
	_, err := NewCatalog("de", map[string][]byte{"en": []byte("a: b")})
	assert.Error(t, err)
	_, err = NewCatalog("en", map[string][]byte{"en": []byte("a: [unclosed")})
	assert.Error(t, err)
}

func TestInterpolate(t *testing.T) {
	assert.Equal(t, "3.00 MAD", interpolate("{{amount}} {{currency}}", Params{"amount": "3.00", "currency": "MAD"}))
	assert.Equal(t, "{{unknown}}", interpolate("{{unknown}}", Params{"a": "b"}))
	assert.Equal(t, "plain", interpolate("plain", nil))
}
