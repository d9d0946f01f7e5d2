// Package orchestrator runs every user action through one template:
// clear notifications, call the session service, report the outcome, then
// re-read products and state and replace the cached snapshot wholesale.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/i18n"
	"github.com/fairyhunter13/vending-kiosk/internal/model"
	"github.com/fairyhunter13/vending-kiosk/internal/notify"
	"github.com/fairyhunter13/vending-kiosk/internal/obs"
	"github.com/fairyhunter13/vending-kiosk/internal/session"
)

// ErrNothingSelected refuses a dispense with an empty selection.
var ErrNothingSelected = errors.New("nothing selected")

// SessionAPI is the subset of *session.Client the orchestrator drives.
type SessionAPI interface {
	ListProducts(ctx context.Context) ([]model.ProductOffering, error)
	GetState(ctx context.Context) (model.SessionState, error)
	InsertCoin(ctx context.Context, coin model.Coin) (*session.CoinResponse, error)
	SelectProduct(ctx context.Context, productID int64) (*session.SelectionResponse, error)
	DeselectProduct(ctx context.Context, productID int64) (*session.SelectionResponse, error)
	Dispense(ctx context.Context) (*session.DispenseResponse, error)
	Cancel(ctx context.Context) (*session.CancelResponse, error)
	AddProduct(ctx context.Context, req *session.AddProductRequest) (*model.Product, error)
}

// Notifier is the notification slot pair.
type Notifier interface {
	ClearAll()
	Show(kind notify.Kind, text string, ttl time.Duration)
}

// Options configures an Orchestrator.
type Options struct {
	Currency    string
	NotifyTTL   time.Duration
	DispenseTTL time.Duration
	Clock       clockwork.Clock
	Metrics     *obs.Metrics
}

// Orchestrator is stateless between runs; callers serialize Run.
type Orchestrator struct {
	api   SessionAPI
	notes Notifier
	res   *i18n.Resolver
	opts  Options
}

// New creates an Orchestrator. Zero TTLs default to 4s and 6s.
func New(api SessionAPI, notes Notifier, res *i18n.Resolver, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NotifyTTL <= 0 {
		opts.NotifyTTL = 4 * time.Second
	}
	if opts.DispenseTTL <= 0 {
		opts.DispenseTTL = 6 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "MAD"
	}
	return &Orchestrator{api: api, notes: notes, res: res, opts: opts}
}

// Run executes a against the session service. It returns the snapshot the
// caller should hold afterwards: a fresh one when the refresh succeeded,
// prev otherwise.
func (o *Orchestrator) Run(ctx context.Context, a Action, prev model.Snapshot) (model.Snapshot, Record) {
	rec := newRecord(a.Kind, o.opts.Clock.Now())
	if a.RequestID != "" {
		ctx = session.WithRequestID(ctx, a.RequestID)
	}
	tag := o.locale(a)
	params := o.errorParams(a, prev)
	next := prev

	o.notes.ClearAll()
	obs.Logger.Debug("action_started", "kind", a.Kind, "request_id", a.RequestID)

	switch {
	case a.Kind == KindLoad:
		o.notes.Show(notify.Info, o.res.T(tag, "notifications.loading", nil), o.opts.NotifyTTL)
		snap, err := o.refresh(ctx, &rec)
		if err != nil {
			o.notes.Show(notify.Info, "", 0)
			o.fail(&rec, tag, err, params)
			break
		}
		o.notes.Show(notify.Info, "", 0)
		next = snap
		rec.Outcome = OutcomeSucceeded

	case a.Kind == KindDispense && !prev.Session.HasSelection():
		o.mustAdvance(&rec, PhaseFailed)
		rec.Err = ErrNothingSelected
		rec.Error = o.res.T(tag, "errors.nothingSelected", params)
		o.notes.Show(notify.Error, rec.Error, o.opts.NotifyTTL)
		o.mustAdvance(&rec, PhaseIdle)
		rec.Outcome = OutcomeFailed

	default:
		o.mustAdvance(&rec, PhaseInFlight)
		text, ttl, err := o.perform(ctx, tag, a, prev)
		if err != nil {
			o.fail(&rec, tag, err, params)
			break
		}
		o.mustAdvance(&rec, PhaseSucceeded)
		rec.Info = text
		o.notes.Show(notify.Info, text, ttl)
		rec.Outcome = OutcomeSucceeded
		snap, err := o.refresh(ctx, &rec)
		if err != nil {
			// The action itself went through; only the refresh failed.
			o.fail(&rec, tag, err, params)
			rec.Outcome = OutcomeSucceeded
			break
		}
		next = snap
	}

	rec.FinishedAt = o.opts.Clock.Now()
	elapsed := rec.FinishedAt.Sub(rec.StartedAt)
	o.opts.Metrics.ObserveAction(string(a.Kind), string(rec.Outcome), elapsed)
	if rec.Err != nil {
		obs.Logger.Warn("action_failed", "kind", a.Kind, "request_id", a.RequestID,
			"phases", rec.History, "error", rec.Err, "duration_ms", elapsed.Milliseconds())
	} else {
		obs.Logger.Info("action_completed", "kind", a.Kind, "request_id", a.RequestID,
			"refreshed", rec.Refreshed, "duration_ms", elapsed.Milliseconds())
	}
	return next, rec
}

func (o *Orchestrator) perform(ctx context.Context, tag language.Tag, a Action, prev model.Snapshot) (string, time.Duration, error) {
	ttl := o.opts.NotifyTTL
	switch a.Kind {
	case KindInsertCoin:
		resp, err := o.api.InsertCoin(ctx, a.Coin)
		if err != nil {
			return "", 0, err
		}
		return o.coinText(tag, resp), ttl, nil
	case KindSelect:
		resp, err := o.api.SelectProduct(ctx, a.ProductID)
		if err != nil {
			return "", 0, err
		}
		return o.selectionText(tag, resp, o.productName(prev, a.ProductID),
			"notifications.productSelected", "notifications.productSelectedNamed"), ttl, nil
	case KindDeselect:
		resp, err := o.api.DeselectProduct(ctx, a.ProductID)
		if err != nil {
			return "", 0, err
		}
		return o.selectionText(tag, resp, o.productName(prev, a.ProductID),
			"notifications.productDeselected", "notifications.productDeselectedNamed"), ttl, nil
	case KindDispense:
		resp, err := o.api.Dispense(ctx)
		if err != nil {
			return "", 0, err
		}
		return o.dispenseText(tag, resp.Outcome()), o.opts.DispenseTTL, nil
	case KindCancel:
		resp, err := o.api.Cancel(ctx)
		if err != nil {
			return "", 0, err
		}
		return o.cancelText(tag, resp), ttl, nil
	case KindAddProduct:
		p, err := o.api.AddProduct(ctx, &session.AddProductRequest{Name: a.Name, Price: a.Price})
		if err != nil {
			return "", 0, err
		}
		return o.res.T(tag, "notifications.productAdded", i18n.Params{
			"name":     p.Name,
			"price":    model.FormatAmount(p.Price),
			"currency": o.opts.Currency,
		}), ttl, nil
	}
	return "", 0, errors.New("unknown action kind " + string(a.Kind))
}

// refresh reads products then state. Either failure aborts the refresh.
func (o *Orchestrator) refresh(ctx context.Context, rec *Record) (model.Snapshot, error) {
	o.mustAdvance(rec, PhaseRefreshing)
	products, err := o.api.ListProducts(ctx)
	if err != nil {
		return model.Snapshot{}, &refreshError{err}
	}
	state, err := o.api.GetState(ctx)
	if err != nil {
		return model.Snapshot{}, &refreshError{err}
	}
	o.mustAdvance(rec, PhaseIdle)
	rec.Refreshed = true
	return model.Snapshot{
		Products:    products,
		Session:     state,
		Loaded:      true,
		RefreshedAt: o.opts.Clock.Now(),
	}, nil
}

type refreshError struct{ err error }

func (e *refreshError) Error() string { return "refresh: " + e.err.Error() }
func (e *refreshError) Unwrap() error { return e.err }

func (o *Orchestrator) fail(rec *Record, tag language.Tag, err error, params i18n.Params) {
	o.mustAdvance(rec, PhaseFailed)
	rec.Err = err
	rec.Outcome = OutcomeFailed

	var re *refreshError
	switch {
	case errors.As(err, &re):
		rec.Error = o.loadErrorText(tag, re.err, params)
	case errors.Is(err, model.ErrInvalidCoin):
		rec.Error = o.res.T(tag, "errors.invalidCoin", params)
	default:
		rec.Error = o.errorText(tag, rec.Kind, err, params)
	}
	o.notes.Show(notify.Error, rec.Error, o.opts.NotifyTTL)
	o.mustAdvance(rec, PhaseIdle)
}

// loadErrorText prefers the message the service sent with a failed
// refresh; errors.loadFailed covers failures that carry none.
func (o *Orchestrator) loadErrorText(tag language.Tag, err error, params i18n.Params) string {
	if msg, isKey, ok := session.MessageOf(err); ok {
		return o.res.Resolve(tag, model.Message{Text: msg, IsKey: isKey}, params)
	}
	return o.res.T(tag, "errors.loadFailed", params)
}

// mustAdvance logs an illegal transition instead of panicking; the record
// keeps its current phase.
func (o *Orchestrator) mustAdvance(rec *Record, to Phase) {
	if err := rec.advance(to); err != nil {
		obs.Logger.Error("action_state", "error", err)
	}
}

func (o *Orchestrator) locale(a Action) language.Tag {
	if a.Locale == language.Und {
		return o.res.Catalog().Fallback()
	}
	return a.Locale
}

func (o *Orchestrator) productName(snap model.Snapshot, id int64) string {
	if p, ok := snap.Product(id); ok {
		return p.Name
	}
	return ""
}

func (o *Orchestrator) errorParams(a Action, prev model.Snapshot) i18n.Params {
	params := i18n.Params{"currency": o.opts.Currency}
	if name := o.productName(prev, a.ProductID); name != "" {
		params["name"] = name
	}
	if a.Kind == KindAddProduct {
		params["name"] = a.Name
	}
	return params
}
