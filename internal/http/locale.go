package httpapi

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
)

const localeCookie = "i18next"

// requestLocale picks the display locale: ?lng, then the i18next cookie,
// then Accept-Language, then the catalog fallback. An explicit ?lng is
// remembered in the cookie.
func requestLocale(cat *i18n.Catalog, w http.ResponseWriter, r *http.Request) language.Tag {
	if lng := r.URL.Query().Get("lng"); lng != "" {
		tag := cat.Match(lng)
		http.SetCookie(w, &http.Cookie{
			Name:     localeCookie,
			Value:    tag.String(),
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		})
		return tag
	}
	if c, err := r.Cookie(localeCookie); err == nil && c.Value != "" {
		return cat.Match(c.Value)
	}
	return cat.Match(r.Header.Get("Accept-Language"))
}
