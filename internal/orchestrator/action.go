package orchestrator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/fairyhunter13/vending-kiosk/internal/model"
)

// Kind names a user-initiated action.
type Kind string

const (
	KindLoad       Kind = "load"
	KindInsertCoin Kind = "insert_coin"
	KindSelect     Kind = "select"
	KindDeselect   Kind = "deselect"
	KindDispense   Kind = "dispense"
	KindCancel     Kind = "cancel"
	KindAddProduct Kind = "add_product"
)

// Action is one request to change (or, for KindLoad, read) the session.
type Action struct {
	Kind      Kind
	Coin      model.Coin
	ProductID int64
	// Name and Price describe the catalog entry for KindAddProduct.
	Name  string
	Price decimal.Decimal

	Locale    language.Tag
	RequestID string
}

// Phase is a step of the per-action state machine:
// Idle → InFlight → (Succeeded → Refreshing → Idle) | (Failed → Idle).
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseInFlight   Phase = "in_flight"
	PhaseSucceeded  Phase = "succeeded"
	PhaseRefreshing Phase = "refreshing"
	PhaseFailed     Phase = "failed"
)

// Idle may go straight to Refreshing for a load, or to Failed when the
// action is refused locally.
var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseInFlight, PhaseRefreshing, PhaseFailed},
	PhaseInFlight:   {PhaseSucceeded, PhaseFailed},
	PhaseSucceeded:  {PhaseRefreshing},
	PhaseRefreshing: {PhaseIdle, PhaseFailed},
	PhaseFailed:     {PhaseIdle},
}

// Outcome summarises a finished action.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Record tracks one action through its phases.
type Record struct {
	Seq        uint64    `json:"seq"`
	Kind       Kind      `json:"kind"`
	Phase      Phase     `json:"phase"`
	History    []Phase   `json:"history"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Info       string    `json:"info,omitempty"`
	Error      string    `json:"error,omitempty"`
	Refreshed  bool      `json:"refreshed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	Err        error     `json:"-"`
}

func newRecord(kind Kind, now time.Time) Record {
	return Record{Kind: kind, Phase: PhaseIdle, History: []Phase{PhaseIdle}, StartedAt: now}
}

func (r *Record) advance(to Phase) error {
	for _, p := range transitions[r.Phase] {
		if p == to {
			r.Phase = to
			r.History = append(r.History, to)
			return nil
		}
	}
	return fmt.Errorf("action %s: illegal transition %s -> %s", r.Kind, r.Phase, to)
}

// Done reports whether the record returned to Idle with an outcome.
func (r Record) Done() bool { return r.Phase == PhaseIdle && r.Outcome != "" }
