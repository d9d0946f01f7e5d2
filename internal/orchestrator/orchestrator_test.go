package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/notify"
	"github.com/fairyhunter13/vending-kiosk/internal/session"
	"github.com/fairyhunter13/vending-kiosk/internal/vendingtest"
)

type shown struct {
	kind notify.Kind
	text string
	ttl  time.Duration
}

type recorder struct {
	mu     sync.Mutex
	clears int
	shown  []shown
	active map[notify.Kind]string
}

func newRecorder() *recorder { return &recorder{active: make(map[notify.Kind]string)} }

func (r *recorder) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.active = make(map[notify.Kind]string)
}

func (r *recorder) Show(kind notify.Kind, text string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, shown{kind, text, ttl})
	if text == "" {
		delete(r.active, kind)
		return
	}
	r.active[kind] = text
}

func (r *recorder) text(kind notify.Kind) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[kind]
}

func (r *recorder) last(kind notify.Kind) shown {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.shown) - 1; i >= 0; i-- {
		if r.shown[i].kind == kind && r.shown[i].text != "" {
			return r.shown[i]
		}
	}
	return shown{}
}

type harness struct {
	orch  *Orchestrator
	fake  *vendingtest.Server
	notes *recorder
	snap  model.Snapshot
}

func newHarness(t *testing.T, opts ...vendingtest.Option) *harness {
	t.Helper()
	fake := vendingtest.New(t, opts...)
	cat, err := i18n.Load("fr")
	require.NoError(t, err)
	notes := newRecorder()
	orch := New(session.New(session.Config{BaseURL: fake.BaseURL()}), notes, i18n.NewResolver(cat), Options{
		Currency:    "MAD",
		NotifyTTL:   4 * time.Second,
		DispenseTTL: 6 * time.Second,
		Clock:       clockwork.NewFakeClock(),
	})
	return &harness{orch: orch, fake: fake, notes: notes}
}

// run executes a in English and keeps the returned snapshot.
func (h *harness) run(t *testing.T, a Action) Record {
	t.Helper()
	if a.Locale == language.Und {
		a.Locale = language.English
	}
	var rec Record
	h.snap, rec = h.orch.Run(context.Background(), a, h.snap)
	return rec
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLoadRefreshesSnapshot(t *testing.T) {
	h := newHarness(t)

	rec := h.run(t, Action{Kind: KindLoad})

	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.True(t, rec.Done())
	assert.True(t, rec.Refreshed)
	assert.Equal(t, []Phase{PhaseIdle, PhaseRefreshing, PhaseIdle}, rec.History)
	assert.True(t, h.snap.Loaded)
	require.Len(t, h.snap.Products, 3)
	assert.False(t, h.snap.Products[0].Purchasable)
	assert.Equal(t, 1, h.fake.Calls("/products"))
	assert.Equal(t, 1, h.fake.Calls("/state"))
	assert.Equal(t, "Loading data...", h.notes.last(notify.Info).text)
	assert.Empty(t, h.notes.text(notify.Info), "loading notice cleared after success")
}

func TestLoadFailureShowsLoadError(t *testing.T) {
	h := newHarness(t)
	h.fake.DropNext("/products")

	rec := h.run(t, Action{Kind: KindLoad})

	assert.Equal(t, OutcomeFailed, rec.Outcome)
	assert.False(t, h.snap.Loaded)
	assert.Equal(t, "Failed to load data.", h.notes.text(notify.Error))
	assert.Empty(t, h.notes.text(notify.Info))
	assert.Equal(t, 0, h.fake.Calls("/state"))
}

func TestLoadFailureShowsServiceMessage(t *testing.T) {
	h := newHarness(t)
	h.fake.FailNext("/products", http.StatusServiceUnavailable, "Catalog offline")

	rec := h.run(t, Action{Kind: KindLoad})

	assert.Equal(t, OutcomeFailed, rec.Outcome)
	assert.Equal(t, "Catalog offline", rec.Error)
	assert.Equal(t, "Catalog offline", h.notes.text(notify.Error))
	assert.Empty(t, h.notes.text(notify.Info))
}

func TestRefreshFailureWithoutMessageUsesLoadError(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	h.fake.FailNext("/products", http.StatusInternalServerError, "")

	h.run(t, Action{Kind: KindLoad, Locale: language.French})

	assert.Equal(t, "Échec du chargement des données.", h.notes.text(notify.Error))
	assert.True(t, h.snap.Loaded)
}

func TestInsertCoinUpdatesBalance(t *testing.T) {
	h := newHarness(t, vendingtest.WithBalance(dec("3")))
	h.run(t, Action{Kind: KindLoad})

	rec := h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinOne})

	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, []Phase{PhaseIdle, PhaseInFlight, PhaseSucceeded, PhaseRefreshing, PhaseIdle}, rec.History)
	assert.Equal(t, "4.00", model.FormatAmount(h.snap.Session.CurrentBalance))
	assert.Equal(t, "Coin inserted. New balance: 4.00 MAD", h.notes.text(notify.Info))
	assert.Equal(t, 4*time.Second, h.notes.last(notify.Info).ttl)
	p, ok := h.snap.Product(2)
	require.True(t, ok)
	assert.True(t, p.Purchasable, "Chips at 4.00 becomes purchasable")
}

func TestInsertInvalidCoinMakesNoRequest(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	prev := h.snap

	rec := h.run(t, Action{Kind: KindInsertCoin, Coin: model.Coin(300)})

	assert.Equal(t, OutcomeFailed, rec.Outcome)
	assert.ErrorIs(t, rec.Err, model.ErrInvalidCoin)
	assert.Equal(t, "This coin is not accepted.", h.notes.text(notify.Error))
	assert.Equal(t, 0, h.fake.Calls("/coin"))
	assert.Equal(t, prev, h.snap)
}

func TestActionClearsNotificationsFirst(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	h.run(t, Action{Kind: KindInsertCoin, Coin: model.Coin(300)})
	require.NotEmpty(t, h.notes.text(notify.Error))

	h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinTwo})

	assert.Empty(t, h.notes.text(notify.Error))
	assert.Equal(t, "Coin inserted. New balance: 2.00 MAD", h.notes.text(notify.Info))
}

func TestSelectUnknownProductLeavesSelection(t *testing.T) {
	h := newHarness(t, vendingtest.WithBalance(dec("10")))
	h.run(t, Action{Kind: KindLoad})
	h.run(t, Action{Kind: KindSelect, ProductID: 1})
	prev := h.snap

	rec := h.run(t, Action{Kind: KindSelect, ProductID: 99})

	assert.Equal(t, OutcomeFailed, rec.Outcome)
	assert.Equal(t, "Product not found", h.notes.text(notify.Error))
	assert.Equal(t, prev, h.snap)
	assert.Equal(t, []int64{1}, h.fake.Selection())
	assert.Equal(t, 1, h.snap.Session.Quantity(1))
}

func TestSelectInsufficientFunds(t *testing.T) {
	h := newHarness(t, vendingtest.WithBalance(dec("1")))
	h.run(t, Action{Kind: KindLoad})

	rec := h.run(t, Action{Kind: KindSelect, ProductID: 1})

	assert.Equal(t, OutcomeFailed, rec.Outcome)
	var apiErr *session.APIError
	require.ErrorAs(t, rec.Err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, "Insufficient balance for Soda", h.notes.text(notify.Error))
}

func TestSelectUsesServerMessageAndRefreshes(t *testing.T) {
	h := newHarness(t, vendingtest.WithBalance(dec("5")))
	h.run(t, Action{Kind: KindLoad})

	h.run(t, Action{Kind: KindSelect, ProductID: 1})
	h.run(t, Action{Kind: KindSelect, ProductID: 3})

	assert.Equal(t, "Product selected successfully", h.notes.text(notify.Info))
	require.Len(t, h.snap.Session.SelectedProducts, 2)
	assert.Equal(t, "5.00", model.FormatAmount(h.snap.Session.TotalSelectedCost))
	for _, p := range h.snap.Products {
		assert.False(t, p.Purchasable, "%s", p.Name)
	}
}

func TestDeselectRemovesOneUnit(t *testing.T) {
	h := newHarness(t, vendingtest.WithBalance(dec("10")))
	h.run(t, Action{Kind: KindLoad})
	h.run(t, Action{Kind: KindSelect, ProductID: 3})
	h.run(t, Action{Kind: KindSelect, ProductID: 3})

	rec := h.run(t, Action{Kind: KindDeselect, ProductID: 3})

	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, 1, h.snap.Session.Quantity(3))
	assert.Equal(t, "Product deselected successfully", h.notes.text(notify.Info))
}

func TestDeselectNotSelectedFails(t *testing.T) {
	h := newHarness(t, vendingtest.WithKeyedMessages())
	h.run(t, Action{Kind: KindLoad})

	h.run(t, Action{Kind: KindDeselect, ProductID: 2})

	assert.Equal(t, "Failed to deselect product.", h.notes.text(notify.Error))
}

func TestDispenseEmptySelectionMakesNoRequest(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	before := h.fake.TotalCalls()
	prev := h.snap

	rec := h.run(t, Action{Kind: KindDispense})

	assert.Equal(t, before, h.fake.TotalCalls())
	assert.ErrorIs(t, rec.Err, ErrNothingSelected)
	assert.Equal(t, []Phase{PhaseIdle, PhaseFailed, PhaseIdle}, rec.History)
	assert.Equal(t, "Please select items to dispense.", h.notes.text(notify.Error))
	assert.Equal(t, prev, h.snap)
}

func TestDispenseListsItemsAndChange(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinTen})
	h.run(t, Action{Kind: KindSelect, ProductID: 1})

	rec := h.run(t, Action{Kind: KindDispense})

	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	info := h.notes.last(notify.Info)
	assert.Equal(t, "Products dispensed successfully Dispensed: Soda. Change: 5.00, 1.00, 0.50 MAD.", info.text)
	assert.Equal(t, 6*time.Second, info.ttl)
	assert.True(t, h.snap.Session.CurrentBalance.IsZero())
	assert.False(t, h.snap.Session.HasSelection())
}

func TestDispenseExactAmountOmitsChange(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	for _, c := range []model.Coin{model.CoinTwo, model.CoinOne, model.CoinHalf} {
		h.run(t, Action{Kind: KindInsertCoin, Coin: c})
	}
	h.run(t, Action{Kind: KindSelect, ProductID: 1})

	h.run(t, Action{Kind: KindDispense})

	assert.Equal(t, "Products dispensed successfully Dispensed: Soda.", h.notes.text(notify.Info))
}

func TestDispenseTextShapes(t *testing.T) {
	h := newHarness(t)
	base := model.Message{Text: "Products dispensed successfully"}
	items := []model.Product{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	change := []decimal.Decimal{dec("2"), dec("0.5")}

	tests := []struct {
		name string
		out  model.DispenseOutcome
		want string
	}{
		{"items and change", model.DispenseOutcome{DispensedProducts: items, ChangeCoins: change, Message: base},
			"Products dispensed successfully Dispensed: A, B. Change: 2.00, 0.50 MAD."},
		{"items only", model.DispenseOutcome{DispensedProducts: items, Message: base},
			"Products dispensed successfully Dispensed: A, B."},
		{"neither", model.DispenseOutcome{Message: base}, "Products dispensed successfully"},
		{"change without items", model.DispenseOutcome{ChangeCoins: change, Message: base}, "Products dispensed successfully"},
		{"no server message", model.DispenseOutcome{}, "Dispense successful!"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, h.orch.dispenseText(language.English, tc.out))
		})
	}
}

func TestCancelListsRefundedCoins(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinTwo})
	h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinOne})

	h.run(t, Action{Kind: KindCancel})

	assert.Equal(t, "Transaction cancelled Refunded: 2.00, 1.00 MAD.", h.notes.text(notify.Info))
	assert.True(t, h.snap.Session.CurrentBalance.IsZero())
}

func TestCancelWithoutCoinsUsesBaseMessage(t *testing.T) {
	h := newHarness(t, vendingtest.WithKeyedMessages())
	h.run(t, Action{Kind: KindLoad})

	h.run(t, Action{Kind: KindCancel, Locale: language.French})

	assert.Equal(t, "Transaction annulée et pièces remboursées.", h.notes.text(notify.Info))
}

func TestKeyedMessagesAreTranslated(t *testing.T) {
	h := newHarness(t, vendingtest.WithKeyedMessages(), vendingtest.WithBalance(dec("5")))
	h.run(t, Action{Kind: KindLoad})

	h.run(t, Action{Kind: KindSelect, ProductID: 1})
	assert.Equal(t, "Product 'Soda' added to selection.", h.notes.text(notify.Info))

	h.run(t, Action{Kind: KindSelect, ProductID: 3, Locale: language.French})
	assert.Equal(t, "Produit « Water » ajouté à la sélection.", h.notes.text(notify.Info))
}

func TestTransportFailureUsesGenericMessage(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	prev := h.snap
	h.fake.DropNext("/coin")

	rec := h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinOne})

	var te *session.TransportError
	require.ErrorAs(t, rec.Err, &te)
	assert.Equal(t, "Failed to insert coin.", h.notes.text(notify.Error))
	assert.Equal(t, prev, h.snap)
}

func TestServerErrorIsAttemptedOnce(t *testing.T) {
	h := newHarness(t, vendingtest.WithBalance(dec("5")))
	h.run(t, Action{Kind: KindLoad})
	h.fake.FailNext("/select", http.StatusInternalServerError, "")

	h.run(t, Action{Kind: KindSelect, ProductID: 1})

	assert.Equal(t, 1, h.fake.Calls("/select"))
	assert.Equal(t, "Failed to select product.", h.notes.text(notify.Error))
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})
	prev := h.snap
	h.fake.FailNext("/state", http.StatusServiceUnavailable, "Session store unavailable")

	rec := h.run(t, Action{Kind: KindInsertCoin, Coin: model.CoinFive})

	assert.Equal(t, []Phase{PhaseIdle, PhaseInFlight, PhaseSucceeded, PhaseRefreshing, PhaseFailed, PhaseIdle}, rec.History)
	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.False(t, rec.Refreshed)
	assert.Equal(t, "Coin inserted. New balance: 5.00 MAD", h.notes.text(notify.Info))
	assert.Equal(t, "Session store unavailable", h.notes.text(notify.Error))
	assert.Equal(t, prev, h.snap)

	h.run(t, Action{Kind: KindLoad})
	assert.Equal(t, "5.00", model.FormatAmount(h.snap.Session.CurrentBalance))
}

func TestAddProduct(t *testing.T) {
	h := newHarness(t)
	h.run(t, Action{Kind: KindLoad})

	rec := h.run(t, Action{Kind: KindAddProduct, Name: "Juice", Price: dec("2.50")})

	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, "Product 'Juice' added to the catalog.", h.notes.text(notify.Info))
	require.Len(t, h.snap.Products, 4)
	assert.Equal(t, "Juice", h.snap.Products[3].Name)
}

func TestNotificationsExpireWithManager(t *testing.T) {
	fake := vendingtest.New(t)
	cat, err := i18n.Load("fr")
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	notes := notify.NewManager(clock, nil)
	orch := New(session.New(session.Config{BaseURL: fake.BaseURL()}), notes, i18n.NewResolver(cat), Options{Clock: clock})

	snap, _ := orch.Run(context.Background(), Action{Kind: KindLoad}, model.Snapshot{})
	orch.Run(context.Background(), Action{Kind: KindInsertCoin, Coin: model.CoinOne}, snap)
	assert.Equal(t, "Pièce insérée. Nouveau solde : 1.00 MAD", notes.Text(notify.Info))

	clock.Advance(4 * time.Second)
	require.Eventually(t, func() bool { return notes.Text(notify.Info) == "" }, time.Second, time.Millisecond)
}

func TestRecordRejectsIllegalTransition(t *testing.T) {
	rec := newRecord(KindCancel, time.Time{})
	require.NoError(t, rec.advance(PhaseInFlight))
	assert.Error(t, rec.advance(PhaseRefreshing))
	assert.Equal(t, PhaseInFlight, rec.Phase)
	require.NoError(t, rec.advance(PhaseFailed))
	assert.Error(t, rec.advance(PhaseSucceeded))
	require.NoError(t, rec.advance(PhaseIdle))
	assert.False(t, rec.Done(), "no outcome recorded")
}
