package httpapi

import (
	"strconv"

	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/notify"
)

// labelKeys are the parameterless ui.* strings the page needs.
var labelKeys = []string{
	"title", "tagline", "productsHeading", "noProducts", "selectItemButton",
	"cannotAffordButton", "transaction", "currentBalance", "yourSelection",
	"noSelection", "total", "dispense", "dispenseAria", "cancel", "cancelAria",
	"adminHeading", "adminName", "adminPrice", "adminSubmit",
}

// ProductView is one catalog card.
type ProductView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Purchasable bool   `json:"purchasable"`
	SelectAria  string `json:"selectAria"`
}

// SelectedView is one line of the selection summary.
type SelectedView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unitPrice"`
	Subtotal     string `json:"subtotal"`
	Each         string `json:"each"`
	DeselectAria string `json:"deselectAria"`
}

// CoinView is one coin button.
type CoinView struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Aria  string `json:"aria"`
}

// View is everything the kiosk page renders. It is derived from the cached
// snapshot and the active notifications only.
type View struct {
	Locale      string            `json:"locale"`
	Locales     []string          `json:"locales"`
	Currency    string            `json:"currency"`
	Labels      map[string]string `json:"labels"`
	InsertCoins string            `json:"insertCoins"`

	Info  string `json:"info,omitempty"`
	Error string `json:"error,omitempty"`

	Loaded      bool           `json:"loaded"`
	Products    []ProductView  `json:"products"`
	Coins       []CoinView     `json:"coins"`
	Balance     string         `json:"balance"`
	Selection   []SelectedView `json:"selection"`
	Total       string         `json:"total"`
	CanDispense bool           `json:"canDispense"`
	Busy        bool           `json:"busy"`
	Admin       bool           `json:"admin"`
	Version     uint64         `json:"version"`
}

type viewInput struct {
	snap     model.Snapshot
	notes    []notify.Notification
	tag      language.Tag
	currency string
	busy     bool
	admin    bool
	version  uint64
}

func buildView(res *i18n.Resolver, in viewInput) View {
	t := func(key string, p i18n.Params) string { return res.T(in.tag, key, p) }

	v := View{
		Locale:      in.tag.String(),
		Currency:    in.currency,
		Labels:      make(map[string]string, len(labelKeys)),
		InsertCoins: t("ui.insertCoins", i18n.Params{"currency": in.currency}),
		Loaded:      in.snap.Loaded,
		Balance:     model.FormatAmount(in.snap.Session.CurrentBalance),
		Total:       model.FormatAmount(in.snap.Session.TotalSelectedCost),
		CanDispense: in.snap.Session.HasSelection() && !in.busy,
		Busy:        in.busy,
		Admin:       in.admin,
		Version:     in.version,
		Products:    make([]ProductView, 0, len(in.snap.Products)),
		Selection:   make([]SelectedView, 0, len(in.snap.Session.SelectedProducts)),
	}
	for _, tag := range res.Catalog().Tags() {
		v.Locales = append(v.Locales, tag.String())
	}
	for _, k := range labelKeys {
		v.Labels[k] = t("ui."+k, nil)
	}
	for _, n := range in.notes {
		if n.Kind == notify.Error {
			v.Error = n.Text
		} else {
			v.Info = n.Text
		}
	}
	for _, p := range in.snap.Products {
		v.Products = append(v.Products, ProductView{
			ID:          p.ID,
			Name:        p.Name,
			Price:       model.FormatAmount(p.Price),
			Purchasable: p.Purchasable,
			SelectAria:  t("ui.selectItemButtonAria", i18n.Params{"itemName": p.Name}),
		})
	}
	for _, c := range model.Coins() {
		amount := c.String()
		v.Coins = append(v.Coins, CoinView{
			Value: c.Decimal().String(),
			Label: amount,
			Aria:  t("ui.insertCoinAria", i18n.Params{"amount": amount, "currency": in.currency}),
		})
	}
	for _, it := range in.snap.Session.SelectedProducts {
		price := model.FormatAmount(it.UnitPrice)
		v.Selection = append(v.Selection, SelectedView{
			ID:        it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: price,
			Subtotal:  model.FormatAmount(it.Subtotal()),
			Each: t("ui.eachPrice", i18n.Params{
				"quantity": strconv.Itoa(it.Quantity), "price": price, "currency": in.currency,
			}),
			DeselectAria: t("ui.deselectAria", i18n.Params{"itemName": it.Name}),
		})
	}
	return v
}
