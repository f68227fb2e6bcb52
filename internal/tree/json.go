package tree

import (
	"encoding/json"
	"fmt"

	"treequant/internal/domain"
)

// ---------------------------------------------------------------------------
// JSON codec
//
// Trees are stored by the surrounding product as JSON with a "kind"
// discriminator. The wire shape is flat: variant fields are present only for
// the matching kind, and slot lists may contain explicit nulls (empty
// insertion points), which round-trip as nil children.
// ---------------------------------------------------------------------------

type wireRHS struct {
	Ticker string        `json:"ticker"`
	Metric domain.Metric `json:"metric"`
	Window int           `json:"window,omitempty"`
}

type wireCondition struct {
	Ticker    string        `json:"ticker"`
	Metric    domain.Metric `json:"metric"`
	Window    int           `json:"window,omitempty"`
	Op        Comparator    `json:"op"`
	Threshold float64       `json:"threshold"`
	RHS       *wireRHS      `json:"rhs,omitempty"`
	ForDays   int           `json:"forDays,omitempty"`
}

type wireWeighting struct {
	Mode      WeightMode `json:"mode,omitempty"`
	VolWindow int        `json:"volWindow,omitempty"`
	Fallback  string     `json:"fallback,omitempty"`
}

type wireNode struct {
	ID        string             `json:"id"`
	Kind      Kind               `json:"kind"`
	Title     string             `json:"title,omitempty"`
	Weighting *wireWeighting     `json:"weighting,omitempty"`
	Weight    *float64           `json:"weight,omitempty"`
	Slots     map[string][]*Node `json:"slots,omitempty"`

	// Variant fields.
	Tickers    []string        `json:"tickers,omitempty"`    // position
	Metric     domain.Metric   `json:"metric,omitempty"`     // function / scaling
	Window     int             `json:"window,omitempty"`     // function / scaling
	Pick       *float64        `json:"pick,omitempty"`       // function
	Bottom     bool            `json:"bottom,omitempty"`     // function
	Conditions []wireCondition `json:"conditions,omitempty"` // indicator
	Mode       NumberedMode    `json:"mode,omitempty"`       // numbered
	Need       int             `json:"need,omitempty"`       // numbered
	Items      []wireCondition `json:"items,omitempty"`      // numbered
	Entry      []wireCondition `json:"entry,omitempty"`      // altExit
	Exit       []wireCondition `json:"exit,omitempty"`       // altExit
	Ticker     string          `json:"ticker,omitempty"`     // scaling
	Low        float64         `json:"low,omitempty"`        // scaling
	High       float64         `json:"high,omitempty"`       // scaling
	TargetID   string          `json:"targetId,omitempty"`   // call
}

func toWireConditions(conds []Condition) []wireCondition {
	if conds == nil {
		return nil
	}
	out := make([]wireCondition, len(conds))
	for i, c := range conds {
		out[i] = wireCondition{
			Ticker:    c.Ticker,
			Metric:    c.Metric,
			Window:    c.Window,
			Op:        c.Op,
			Threshold: c.Threshold,
			ForDays:   c.ForDays,
		}
		if c.RHS != nil {
			out[i].RHS = &wireRHS{Ticker: c.RHS.Ticker, Metric: c.RHS.Metric, Window: c.RHS.Window}
		}
	}
	return out
}

func fromWireConditions(conds []wireCondition) []Condition {
	if conds == nil {
		return nil
	}
	out := make([]Condition, len(conds))
	for i, c := range conds {
		out[i] = Condition{
			Ticker:    c.Ticker,
			Metric:    c.Metric,
			Window:    c.Window,
			Op:        c.Op,
			Threshold: c.Threshold,
			ForDays:   c.ForDays,
		}
		if c.RHS != nil {
			out[i].RHS = &CondRHS{Ticker: c.RHS.Ticker, Metric: c.RHS.Metric, Window: c.RHS.Window}
		}
	}
	return out
}

// MarshalJSON encodes the node in the product's flat tagged-union shape.
func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireNode{
		ID:     n.ID,
		Kind:   n.Kind,
		Title:  n.Title,
		Weight: n.Weight,
		Slots:  n.Slots,
	}
	if n.Weighting != (Weighting{}) {
		w.Weighting = &wireWeighting{
			Mode:      n.Weighting.Mode,
			VolWindow: n.Weighting.VolWindow,
			Fallback:  n.Weighting.Fallback,
		}
	}
	switch n.Kind {
	case KindPosition:
		if n.Position != nil {
			w.Tickers = n.Position.Tickers
		}
	case KindFunction:
		if n.Function != nil {
			w.Metric = n.Function.Metric
			w.Window = n.Function.Window
			pick := n.Function.Pick
			w.Pick = &pick
			w.Bottom = n.Function.Bottom
		}
	case KindIndicator:
		if n.Gate != nil {
			w.Conditions = toWireConditions(n.Gate.Conditions)
		}
	case KindNumbered:
		if n.Numbered != nil {
			w.Mode = n.Numbered.Mode
			w.Need = n.Numbered.Need
			w.Items = toWireConditions(n.Numbered.Items)
		}
	case KindAltExit:
		if n.AltExit != nil {
			w.Entry = toWireConditions(n.AltExit.Entry)
			w.Exit = toWireConditions(n.AltExit.Exit)
		}
	case KindScaling:
		if n.Scaling != nil {
			w.Ticker = n.Scaling.Ticker
			w.Metric = n.Scaling.Metric
			w.Window = n.Scaling.Window
			w.Low = n.Scaling.Low
			w.High = n.Scaling.High
		}
	case KindCall:
		if n.Call != nil {
			w.TargetID = n.Call.TargetID
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the product's flat tagged-union shape, attaching the
// variant payload matching the "kind" discriminator.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kind == "" {
		return fmt.Errorf("tree: node %q has no kind", w.ID)
	}

	n.ID = w.ID
	n.Kind = w.Kind
	n.Title = w.Title
	n.Weight = w.Weight
	n.Slots = w.Slots
	if w.Weighting != nil {
		n.Weighting = Weighting{
			Mode:      w.Weighting.Mode,
			VolWindow: w.Weighting.VolWindow,
			Fallback:  w.Weighting.Fallback,
		}
	}

	switch w.Kind {
	case KindBasic:
		// No payload.
	case KindPosition:
		n.Position = &PositionSpec{Tickers: w.Tickers}
	case KindFunction:
		f := &FunctionSpec{Metric: w.Metric, Window: w.Window, Bottom: w.Bottom}
		if w.Pick != nil {
			f.Pick = *w.Pick
		}
		n.Function = f
	case KindIndicator:
		n.Gate = &GateSpec{Conditions: fromWireConditions(w.Conditions)}
	case KindNumbered:
		mode := w.Mode
		if mode == "" {
			mode = NumberedGate
		}
		n.Numbered = &NumberedSpec{Mode: mode, Need: w.Need, Items: fromWireConditions(w.Items)}
	case KindAltExit:
		n.AltExit = &AltExitSpec{Entry: fromWireConditions(w.Entry), Exit: fromWireConditions(w.Exit)}
	case KindScaling:
		n.Scaling = &ScalingSpec{Ticker: w.Ticker, Metric: w.Metric, Window: w.Window, Low: w.Low, High: w.High}
	case KindCall:
		n.Call = &CallSpec{TargetID: w.TargetID}
	default:
		return fmt.Errorf("tree: node %q has unknown kind %q", w.ID, w.Kind)
	}

	// Decoded input is untrusted, so a foreign slot is an input error here
	// rather than the contract panic CheckSlots raises for in-memory trees.
	if name, bad := n.foreignSlot(); bad {
		return fmt.Errorf("tree: %s node %q carries invalid slot %q", n.Kind, n.ID, name)
	}
	return nil
}
