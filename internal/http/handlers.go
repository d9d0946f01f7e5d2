package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/config"
	httpopenapi "github.com/fairyhunter13/vending-kiosk/internal/http/openapi"
	"github.com/fairyhunter13/vending-kiosk/internal/http/views"
	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/notify"
	"github.com/fairyhunter13/vending-kiosk/internal/obs"
	"github.com/fairyhunter13/vending-kiosk/internal/orchestrator"
	"github.com/fairyhunter13/vending-kiosk/internal/queue"
	"github.com/fairyhunter13/vending-kiosk/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type App struct {
	Cfg      config.Config
	Store    *store.Store
	Manager  *queue.Manager
	Notes    *notify.Manager
	Resolver *i18n.Resolver
	Hub      *Hub
	Registry *prometheus.Registry
	Metrics  *obs.Metrics

	closing atomic.Bool
	changes atomic.Uint64
	started time.Time
}

// actionResponse is the JSON reply to an action.
type actionResponse struct {
	Record orchestrator.Record `json:"record"`
	View   View                `json:"view"`
}

// NewApp wires the view layer. Store replacements and notification changes
// are pushed to websocket clients.
func NewApp(cfg config.Config, st *store.Store, m *queue.Manager, notes *notify.Manager, res *i18n.Resolver, reg *prometheus.Registry, metrics *obs.Metrics) *App {
	a := &App{
		Cfg:      cfg,
		Store:    st,
		Manager:  m,
		Notes:    notes,
		Resolver: res,
		Hub:      NewHub(),
		Registry: reg,
		Metrics:  metrics,
		started:  time.Now(),
	}
	st.OnChange(func(uint64) { a.changed() })
	notes.OnChange(a.changed)
	return a
}

func (a *App) changed() {
	a.Hub.Changed(a.changes.Add(1))
}

// StartShutdown refuses new actions; queued ones still drain.
func (a *App) StartShutdown() {
	a.closing.Store(true)
	a.Manager.CloseIntake()
}

func (a *App) view(tag language.Tag) View {
	return buildView(a.Resolver, viewInput{
		snap:     a.Store.Current(),
		notes:    a.Notes.Snapshot(),
		tag:      tag,
		currency: a.Cfg.Currency,
		busy:     a.Manager.Busy(),
		admin:    a.Cfg.AdminEnabled,
		version:  a.changes.Load(),
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	v := a.view(requestLocale(a.Resolver.Catalog(), w, r))
	var buf bytes.Buffer
	if err := views.Index.Execute(&buf, v); err != nil {
		obs.Logger.Error("render_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		WriteJSONError(w, http.StatusInternalServerError, "render_failed", "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (a *App) viewHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.view(requestLocale(a.Resolver.Catalog(), w, r)))
}

// dispatch runs act through the queue and answers with a redirect to the
// page, or with the record and fresh view for JSON clients.
func (a *App) dispatch(w http.ResponseWriter, r *http.Request, act orchestrator.Action) {
	if a.closing.Load() || a.Manager.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	tag := requestLocale(a.Resolver.Catalog(), w, r)
	act.Locale = tag
	act.RequestID = RequestIDFromContext(r.Context())

	rec, err := a.Manager.Submit(r.Context(), act)
	switch {
	case errors.Is(err, queue.ErrBusy), errors.Is(err, queue.ErrFull):
		text := a.Resolver.T(tag, "errors.busy", nil)
		a.Notes.Show(notify.Error, text, a.Cfg.NotifyTTL)
		if wantsJSON(r) {
			WriteJSONError(w, http.StatusConflict, "busy", text)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	case errors.Is(err, queue.ErrClosed):
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	case err != nil:
		// The client went away; the action still completes in the background.
		obs.Logger.Info("action_abandoned", "kind", act.Kind, "request_id", act.RequestID, "error", err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, actionResponse{Record: rec, View: a.view(tag)})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) coinHandler(w http.ResponseWriter, r *http.Request) {
	coin, err := model.ParseCoin(r.FormValue("value"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_coin", err.Error())
		return
	}
	a.dispatch(w, r, orchestrator.Action{Kind: orchestrator.KindInsertCoin, Coin: coin})
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func (a *App) selectHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		WriteJSONError(w, http.StatusBadRequest, "invalid_product_id", "")
		return
	}
	a.dispatch(w, r, orchestrator.Action{Kind: orchestrator.KindSelect, ProductID: id})
}

func (a *App) deselectHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		WriteJSONError(w, http.StatusBadRequest, "invalid_product_id", "")
		return
	}
	a.dispatch(w, r, orchestrator.Action{Kind: orchestrator.KindDeselect, ProductID: id})
}

func (a *App) dispenseHandler(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, orchestrator.Action{Kind: orchestrator.KindDispense})
}

func (a *App) cancelHandler(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, orchestrator.Action{Kind: orchestrator.KindCancel})
}

func (a *App) addProductHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil || !price.IsPositive() {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "price must be a positive amount")
		return
	}
	a.dispatch(w, r, orchestrator.Action{Kind: orchestrator.KindAddProduct, Name: name, Price: price})
}

func (a *App) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		obs.Logger.Warn("ws_upgrade_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		return
	}
	a.Hub.Register(conn, a.changes.Load())
	defer a.Hub.Unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) debugMetricsHandler(w http.ResponseWriter, r *http.Request) {
	enq, proc, backlog := a.Manager.QueueMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"actions_enqueued":  enq,
		"actions_processed": proc,
		"backlog_size":      backlog,
		"busy":              a.Manager.Busy(),
		"snapshot_version":  a.Store.Version(),
		"view_version":      a.changes.Load(),
		"ws_clients":        a.Hub.ClientCount(),
		"last_action":       a.Manager.Last(),
		"uptime_sec":        time.Since(a.started).Seconds(),
	})
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Kiosk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
