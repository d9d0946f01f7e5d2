package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fairyhunter13/vending-kiosk/internal/obs"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := mux.NewRouter()
	r.Use(WithMetrics(app.Metrics))

	r.HandleFunc("/", app.indexHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/view", app.viewHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", app.wsHandler).Methods(http.MethodGet)

	actions := r.PathPrefix("/actions").Methods(http.MethodPost).Subrouter()
	actions.HandleFunc("/coin", app.coinHandler)
	actions.HandleFunc("/select/{id:[0-9]+}", app.selectHandler)
	actions.HandleFunc("/deselect/{id:[0-9]+}", app.deselectHandler)
	actions.HandleFunc("/dispense", app.dispenseHandler)
	actions.HandleFunc("/cancel", app.cancelHandler)

	if app.Cfg.AdminEnabled {
		r.HandleFunc("/admin/products", app.addProductHandler).Methods(http.MethodPost)
	}

	r.HandleFunc("/healthz", app.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler(app.Registry)).Methods(http.MethodGet)
	r.HandleFunc("/debug/metrics", app.debugMetricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", app.openapiHandler).Methods(http.MethodGet)
	r.HandleFunc("/docs", app.docsHandler).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	return WithRequestID(WithLogging(r))
}
