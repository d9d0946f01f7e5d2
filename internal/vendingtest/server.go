// Package vendingtest provides an in-memory fake of the remote vending
// session service for tests.
package vendingtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
)

// BasePath is where the fake mounts the session API.
const BasePath = "/api/distributor"

// DefaultProducts is the catalog a new Server starts with.
func DefaultProducts() []model.Product {
	return []model.Product{
		{ID: 1, Name: "Soda", Price: decimal.RequireFromString("3.50")},
		{ID: 2, Name: "Chips", Price: decimal.RequireFromString("4.00")},
		{ID: 3, Name: "Water", Price: decimal.RequireFromString("1.50")},
	}
}

var denominations = []decimal.Decimal{
	decimal.NewFromInt(10),
	decimal.NewFromInt(5),
	decimal.NewFromInt(2),
	decimal.NewFromInt(1),
	decimal.RequireFromString("0.5"),
}

type failure struct {
	status    int
	code      string
	message   string
	transport bool
}

// Server is a running fake. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	products  []model.Product
	nextID    int64
	balance   decimal.Decimal
	inserted  []decimal.Decimal
	selection []int64
	calls     map[string]int
	failNext  map[string]failure
	keyed     bool
	gate      chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithKeyedMessages makes the fake answer with catalog keys instead of
// literal English text, without an isKey flag.
func WithKeyedMessages() Option { return func(s *Server) { s.keyed = true } }

// WithProducts replaces the starting catalog.
func WithProducts(ps ...model.Product) Option {
	return func(s *Server) { s.products = append([]model.Product(nil), ps...) }
}

// WithBalance sets the starting balance.
func WithBalance(d decimal.Decimal) Option { return func(s *Server) { s.balance = d } }

// New starts a fake and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		products: DefaultProducts(),
		calls:    make(map[string]int),
		failNext: make(map[string]failure),
	}
	for _, o := range opts {
		o(s)
	}
	for _, p := range s.products {
		if p.ID >= s.nextID {
			s.nextID = p.ID + 1
		}
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value for the client's base URL.
func (s *Server) BaseURL() string { return s.URL + BasePath }

// Calls returns how many requests hit path, e.g. "/coin".
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// FailNext makes the next request to path answer status with an error
// body carrying message.
func (s *Server) FailNext(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[path] = failure{status: status, code: "INJECTED", message: message}
}

// DropNext makes the next request to path fail at the transport level.
func (s *Server) DropNext(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[path] = failure{transport: true}
}

// Hold blocks every request until the returned release func is called.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Balance returns the current balance.
func (s *Server) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Selection returns selected product ids in selection order.
func (s *Server) Selection() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.selection...)
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(BasePath).Subrouter()
	api.Use(s.intercept)
	api.HandleFunc("/products", s.handleProducts).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/coin", s.handleCoin).Methods(http.MethodPost)
	api.HandleFunc("/select", s.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/deselect", s.handleDeselect).Methods(http.MethodPost)
	api.HandleFunc("/dispense", s.handleDispense).Methods(http.MethodPost)
	api.HandleFunc("/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/admin/product", s.handleAddProduct).Methods(http.MethodPost)
	return r
}

// intercept counts calls, honours Hold, and applies injected failures.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len(BasePath):]
		s.mu.Lock()
		s.calls[path]++
		gate := s.gate
		f, failing := s.failNext[path]
		delete(s.failNext, path)
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if failing {
			if f.transport {
				if hj, ok := w.(http.Hijacker); ok {
					if conn, _, err := hj.Hijack(); err == nil {
						_ = conn.Close()
						return
					}
				}
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeJSON(w, f.status, errorBody{Error: f.code, Message: f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type productBody struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	Purchasable *bool       `json:"purchasable,omitempty"`
}

type selectedBody struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

type stateBody struct {
	CurrentBalance    json.Number    `json:"currentBalance"`
	SelectedProducts  []selectedBody `json:"selectedProducts"`
	TotalSelectedCost json.Number    `json:"totalSelectedCost"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func num(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func nums(ds []decimal.Decimal) []json.Number {
	out := make([]json.Number, 0, len(ds))
	for _, d := range ds {
		out = append(out, num(d))
	}
	return out
}

func toBody(p model.Product) productBody {
	return productBody{ID: p.ID, Name: p.Name, Price: num(p.Price)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// text picks the keyed or literal variant of a message.
func (s *Server) text(key, literal string) string {
	if s.keyed {
		return key
	}
	return literal
}

func (s *Server) fail(w http.ResponseWriter, status int, code, key, literal string) {
	writeJSON(w, status, errorBody{Error: code, Message: s.text(key, literal)})
}

// Callers hold s.mu for the helpers below.

func (s *Server) product(id int64) (model.Product, bool) {
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

func (s *Server) selectedCost() decimal.Decimal {
	total := decimal.Zero
	for _, id := range s.selection {
		if p, ok := s.product(id); ok {
			total = total.Add(p.Price)
		}
	}
	return total
}

func (s *Server) state() stateBody {
	var order []int64
	qty := make(map[int64]int)
	for _, id := range s.selection {
		if qty[id] == 0 {
			order = append(order, id)
		}
		qty[id]++
	}
	items := make([]selectedBody, 0, len(order))
	for _, id := range order {
		p, _ := s.product(id)
		items = append(items, selectedBody{ID: id, Name: p.Name, Price: num(p.Price), Quantity: qty[id]})
	}
	return stateBody{
		CurrentBalance:    num(s.balance),
		SelectedProducts:  items,
		TotalSelectedCost: num(s.selectedCost()),
	}
}

// change splits amount greedily over the accepted denominations.
func change(amount decimal.Decimal) []decimal.Decimal {
	var out []decimal.Decimal
	for _, d := range denominations {
		for amount.GreaterThanOrEqual(d) {
			out = append(out, d)
			amount = amount.Sub(d)
		}
	}
	return out
}

func (s *Server) reset() {
	s.balance = decimal.Zero
	s.inserted = nil
	s.selection = nil
}

func (s *Server) handleProducts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	available := s.balance.Sub(s.selectedCost())
	out := make([]productBody, 0, len(s.products))
	for _, p := range s.products {
		b := toBody(p)
		ok := available.GreaterThanOrEqual(p.Price)
		b.Purchasable = &ok
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value decimal.Decimal `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "INVALID_REQUEST", "errors.insertCoinFailed", "Malformed request")
		return
	}
	if _, err := model.CoinFromDecimal(req.Value); err != nil {
		s.fail(w, http.StatusBadRequest, "INVALID_COIN", "errors.invalidCoin", "Invalid coin: "+req.Value.String())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(req.Value)
	s.inserted = append(s.inserted, req.Value)
	writeJSON(w, http.StatusOK, map[string]json.Number{"currentBalance": num(s.balance)})
}

type selectionReq struct {
	ProductID int64 `json:"productId"`
}

type selectionResp struct {
	Message           string         `json:"message"`
	Action            string         `json:"action"`
	Product           productBody    `json:"product"`
	CurrentBalance    json.Number    `json:"currentBalance"`
	SelectedProducts  []selectedBody `json:"selectedProducts"`
	TotalSelectedCost json.Number    `json:"totalSelectedCost"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "INVALID_REQUEST", "errors.selectFailed", "Malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.product(req.ProductID)
	if !ok {
		s.fail(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "errors.selectFailed", "Product not found")
		return
	}
	if s.balance.Sub(s.selectedCost()).LessThan(p.Price) {
		s.fail(w, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "errors.selectFailed", "Insufficient balance for "+p.Name)
		return
	}
	s.selection = append(s.selection, p.ID)
	st := s.state()
	writeJSON(w, http.StatusOK, selectionResp{
		Message:           s.text("notifications.productSelectedNamed", "Product selected successfully"),
		Action:            "selected",
		Product:           toBody(p),
		CurrentBalance:    st.CurrentBalance,
		SelectedProducts:  st.SelectedProducts,
		TotalSelectedCost: st.TotalSelectedCost,
	})
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	var req selectionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "INVALID_REQUEST", "errors.deselectFailed", "Malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := len(s.selection) - 1; i >= 0; i-- {
		if s.selection[i] == req.ProductID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.fail(w, http.StatusBadRequest, "NOT_SELECTED", "errors.deselectFailed", "Product is not in the selection")
		return
	}
	s.selection = append(s.selection[:idx], s.selection[idx+1:]...)
	p, _ := s.product(req.ProductID)
	st := s.state()
	writeJSON(w, http.StatusOK, selectionResp{
		Message:           s.text("notifications.productDeselectedNamed", "Product deselected successfully"),
		Action:            "deselected",
		Product:           toBody(p),
		CurrentBalance:    st.CurrentBalance,
		SelectedProducts:  st.SelectedProducts,
		TotalSelectedCost: st.TotalSelectedCost,
	})
}

func (s *Server) handleDispense(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selection) == 0 {
		s.fail(w, http.StatusBadRequest, "NO_SELECTION", "errors.nothingSelected", "No products selected")
		return
	}
	cost := s.selectedCost()
	if s.balance.LessThan(cost) {
		s.fail(w, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "errors.dispenseFailed", "Insufficient balance")
		return
	}
	dispensed := make([]productBody, 0, len(s.selection))
	for _, id := range s.selection {
		p, _ := s.product(id)
		dispensed = append(dispensed, toBody(p))
	}
	coins := change(s.balance.Sub(cost))
	s.reset()
	writeJSON(w, http.StatusOK, map[string]any{
		"dispensedProducts": dispensed,
		"changeCoins":       nums(coins),
		"message":           s.text("notifications.dispensed", "Products dispensed successfully"),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refund := s.inserted
	s.reset()
	writeJSON(w, http.StatusOK, map[string]any{
		"refundedCoins": nums(refund),
		"message":       s.text("notifications.cancelled", "Transaction cancelled"),
	})
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || !req.Price.IsPositive() {
		s.fail(w, http.StatusBadRequest, "INVALID_PRODUCT", "errors.addProductFailed", "Invalid product")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.Product{ID: s.nextID, Name: req.Name, Price: req.Price}
	s.nextID++
	s.products = append(s.products, p)
	writeJSON(w, http.StatusCreated, toBody(p))
}
