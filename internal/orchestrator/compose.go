package orchestrator

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/session"
)

// failureKeys are the generic error notifications per action.
var failureKeys = map[Kind]string{
	KindLoad:       "errors.loadFailed",
	KindInsertCoin: "errors.insertCoinFailed",
	KindSelect:     "errors.selectFailed",
	KindDeselect:   "errors.deselectFailed",
	KindDispense:   "errors.dispenseFailed",
	KindCancel:     "errors.cancelFailed",
	KindAddProduct: "errors.addProductFailed",
}

func (o *Orchestrator) coinText(tag language.Tag, resp *session.CoinResponse) string {
	return o.res.T(tag, "notifications.coinInserted", i18n.Params{
		"balance":  model.FormatAmount(resp.CurrentBalance),
		"currency": o.opts.Currency,
	})
}

// selectionText prefers the server message, then a named, then a generic key.
func (o *Orchestrator) selectionText(tag language.Tag, resp *session.SelectionResponse, name, genericKey, namedKey string) string {
	if resp.Product != nil && resp.Product.Name != "" {
		name = resp.Product.Name
	}
	params := i18n.Params{"name": name, "currency": o.opts.Currency}
	if s := o.res.Resolve(tag, resp.Feedback(), params); s != "" {
		return s
	}
	if name != "" {
		return o.res.T(tag, namedKey, params)
	}
	return o.res.T(tag, genericKey, params)
}

// dispenseText has three shapes: items and change, items only, or the base
// message alone. Change is listed only alongside dispensed items.
func (o *Orchestrator) dispenseText(tag language.Tag, out model.DispenseOutcome) string {
	base := o.res.ResolveOr(tag, out.Message, "notifications.dispensed", nil)
	if len(out.DispensedProducts) == 0 {
		return base
	}
	names := make([]string, 0, len(out.DispensedProducts))
	for _, p := range out.DispensedProducts {
		names = append(names, p.Name)
	}
	params := i18n.Params{
		"message":  base,
		"items":    strings.Join(names, ", "),
		"currency": o.opts.Currency,
	}
	if len(out.ChangeCoins) == 0 {
		return o.res.T(tag, "notifications.dispensedItems", params)
	}
	params["change"] = model.FormatAmounts(out.ChangeCoins)
	return o.res.T(tag, "notifications.dispensedItemsAndChange", params)
}

func (o *Orchestrator) cancelText(tag language.Tag, resp *session.CancelResponse) string {
	base := o.res.ResolveOr(tag, resp.Feedback(), "notifications.cancelled", nil)
	if len(resp.RefundedCoins) == 0 {
		return base
	}
	return o.res.T(tag, "notifications.cancelledWithRefund", i18n.Params{
		"message":  base,
		"coins":    model.FormatAmounts(resp.RefundedCoins),
		"currency": o.opts.Currency,
	})
}

// errorText resolves the message carried by err, falling back to the
// action's generic key.
func (o *Orchestrator) errorText(tag language.Tag, kind Kind, err error, params i18n.Params) string {
	if msg, isKey, ok := session.MessageOf(err); ok {
		return o.res.Resolve(tag, model.Message{Text: msg, IsKey: isKey}, params)
	}
	key, ok := failureKeys[kind]
	if !ok {
		key = "errors.loadFailed"
	}
	return o.res.T(tag, key, params)
}
