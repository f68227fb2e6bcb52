// Package tree defines the decision-tree data model for rule-based trading
// strategies and the compiler that reduces a user-authored tree to a smaller,
// semantically equivalent tree before simulation.
package tree

import (
	"fmt"

	"treequant/internal/domain"
)

// Kind tags the variant of a decision node.
type Kind string

const (
	KindBasic     Kind = "basic"     // weighted fan-out over children
	KindFunction  Kind = "function"  // rank/select top-N children by indicator
	KindPosition  Kind = "position"  // terminal ticker allocation
	KindIndicator Kind = "indicator" // if/then/else gate with conditions
	KindNumbered  Kind = "numbered"  // N-of-M quantified gate or match-count ladder
	KindAltExit   Kind = "altExit"   // separate entry/exit condition sets
	KindScaling   Kind = "scaling"   // allocation interpolated between thresholds
	KindCall      Kind = "call"      // reference to a named, externally stored sub-tree
)

// WeightMode selects how a node distributes weight across its children.
type WeightMode string

const (
	WeightEqual   WeightMode = "equal"
	WeightDefined WeightMode = "defined" // explicit per-child percentages
	WeightCapped  WeightMode = "capped"  // explicit percentages with a fallback ticker
	WeightInverse WeightMode = "inverse" // inverse-volatility
	WeightPro     WeightMode = "pro"     // pro-volatility
)

// Comparator is the comparison operator of a single condition line.
type Comparator string

const (
	CmpGT         Comparator = "gt"
	CmpLT         Comparator = "lt"
	CmpCrossAbove Comparator = "crossAbove"
	CmpCrossBelow Comparator = "crossBelow"
)

// EmptyTicker is the sentinel for an empty position slot: a position listing
// only this value allocates nothing.
const EmptyTicker = ""

// Slot names. Ladder slots are dynamic: "ladder-0" .. "ladder-<M>".
const (
	SlotNext = "next"
	SlotThen = "then"
	SlotElse = "else"
)

// CondRHS mirrors the left-hand ticker/indicator/window of a condition for
// indicator-vs-indicator comparisons.
type CondRHS struct {
	Ticker string
	Metric domain.Metric
	Window int
}

// Condition is a single comparison test: indicator(Ticker, Window) Op
// Threshold, or against RHS when present. ForDays > 1 requires that many
// consecutive true evaluations.
type Condition struct {
	Ticker    string
	Metric    domain.Metric
	Window    int // 0 for windowless indicators
	Op        Comparator
	Threshold float64
	RHS       *CondRHS
	ForDays   int
}

// Weighting describes how a node distributes allocation across children.
type Weighting struct {
	Mode      WeightMode
	VolWindow int    // inverse/pro: volatility lookback window
	Fallback  string // capped: ticker receiving the uncapped remainder
}

// ---------------------------------------------------------------------------
// Variant payloads
// ---------------------------------------------------------------------------

// PositionSpec is the payload of a position node.
type PositionSpec struct {
	Tickers []string
}

// FunctionSpec is the payload of a function (rank/select) node. Pick is kept
// as a float so that non-finite user input can be surfaced as a validation
// error instead of silently truncating.
type FunctionSpec struct {
	Metric domain.Metric
	Window int
	Pick   float64
	Bottom bool // select bottom-N instead of top-N
}

// GateSpec is the payload of an indicator (if/then/else) node. All conditions
// must hold for the then branch to activate.
type GateSpec struct {
	Conditions []Condition
}

// NumberedMode selects between the two numbered-node behaviours.
type NumberedMode string

const (
	NumberedGate   NumberedMode = "gate"   // then/else on >= Need matches
	NumberedLadder NumberedMode = "ladder" // one branch per exact match count
)

// NumberedSpec is the payload of a numbered node: a quantified N-of-M gate or
// a ladder of mutually exclusive match-count branches.
type NumberedSpec struct {
	Mode  NumberedMode
	Need  int
	Items []Condition
}

// AltExitSpec is the payload of an altExit node: the position is entered when
// every entry condition holds and abandoned when every exit condition holds.
type AltExitSpec struct {
	Entry []Condition
	Exit  []Condition
}

// ScalingSpec is the payload of a scaling node: allocation is interpolated
// between the then and else branches as the indicator moves from Low to High.
type ScalingSpec struct {
	Ticker string
	Metric domain.Metric
	Window int
	Low    float64
	High   float64
}

// CallSpec is the payload of a call node referencing a named sub-tree by id.
type CallSpec struct {
	TargetID string
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is one decision-tree node. Exactly the payload matching Kind is
// non-nil; slot keys are a pure function of Kind (plus the item count for
// ladder nodes). A slot list may contain nil entries, which are empty
// insertion points left by the editor.
//
// Weight is this node's explicit percentage within a defined/capped parent;
// nil under equal weighting.
type Node struct {
	ID        string
	Kind      Kind
	Title     string
	Weighting Weighting
	Weight    *float64
	Slots     map[string][]*Node

	Position *PositionSpec
	Function *FunctionSpec
	Gate     *GateSpec
	Numbered *NumberedSpec
	AltExit  *AltExitSpec
	Scaling  *ScalingSpec
	Call     *CallSpec
}

// LadderSlot returns the name of the k-th ladder slot.
func LadderSlot(k int) string {
	return fmt.Sprintf("ladder-%d", k)
}

// SlotNames returns the ordered slot names valid for this node. Ladder nodes
// get one slot per possible match count, 0 through len(Items).
func (n *Node) SlotNames() []string {
	switch n.Kind {
	case KindBasic, KindFunction:
		return []string{SlotNext}
	case KindIndicator, KindAltExit, KindScaling:
		return []string{SlotThen, SlotElse}
	case KindNumbered:
		if n.Numbered != nil && n.Numbered.Mode == NumberedLadder {
			names := make([]string, 0, len(n.Numbered.Items)+1)
			for k := 0; k <= len(n.Numbered.Items); k++ {
				names = append(names, LadderSlot(k))
			}
			return names
		}
		return []string{SlotThen, SlotElse}
	case KindPosition, KindCall:
		return nil
	default:
		return nil
	}
}

// foreignSlot returns the first slot name outside the node's declared set,
// or false when every slot is legal for the kind.
func (n *Node) foreignSlot() (string, bool) {
	allowed := make(map[string]bool)
	for _, name := range n.SlotNames() {
		allowed[name] = true
	}
	for name := range n.Slots {
		if !allowed[name] {
			return name, true
		}
	}
	return "", false
}

// CheckSlots panics if the node carries a slot outside its declared set.
// A node kind with foreign slots is a programming-contract violation, not a
// recoverable runtime condition.
func (n *Node) CheckSlots() {
	if name, bad := n.foreignSlot(); bad {
		panic(fmt.Sprintf("tree: %s node %q carries invalid slot %q", n.Kind, n.ID, name))
	}
}

// Children returns the child list for a slot, or nil if the slot is absent.
func (n *Node) Children(slot string) []*Node {
	if n.Slots == nil {
		return nil
	}
	return n.Slots[slot]
}

// SetChildren replaces the child list for a slot, allocating the slot map on
// first use.
func (n *Node) SetChildren(slot string, kids []*Node) {
	if n.Slots == nil {
		n.Slots = make(map[string][]*Node)
	}
	n.Slots[slot] = kids
}

// Conditions returns every condition line owned directly by this node,
// regardless of variant.
func (n *Node) Conditions() []Condition {
	switch n.Kind {
	case KindIndicator:
		if n.Gate != nil {
			return n.Gate.Conditions
		}
	case KindNumbered:
		if n.Numbered != nil {
			return n.Numbered.Items
		}
	case KindAltExit:
		if n.AltExit != nil {
			out := make([]Condition, 0, len(n.AltExit.Entry)+len(n.AltExit.Exit))
			out = append(out, n.AltExit.Entry...)
			out = append(out, n.AltExit.Exit...)
			return out
		}
	}
	return nil
}

// CountNodes returns the total number of nodes in the subtree rooted at n,
// recursing over every slot. A nil root counts as zero.
func CountNodes(n *Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, slot := range n.SlotNames() {
		for _, child := range n.Children(slot) {
			total += CountNodes(child)
		}
	}
	return total
}

// Clone returns a deep, mutation-safe copy of the subtree rooted at n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Weighting: n.Weighting,
	}
	if n.Weight != nil {
		w := *n.Weight
		out.Weight = &w
	}
	switch {
	case n.Position != nil:
		out.Position = &PositionSpec{Tickers: append([]string(nil), n.Position.Tickers...)}
	case n.Function != nil:
		f := *n.Function
		out.Function = &f
	case n.Gate != nil:
		out.Gate = &GateSpec{Conditions: cloneConditions(n.Gate.Conditions)}
	case n.Numbered != nil:
		out.Numbered = &NumberedSpec{
			Mode:  n.Numbered.Mode,
			Need:  n.Numbered.Need,
			Items: cloneConditions(n.Numbered.Items),
		}
	case n.AltExit != nil:
		out.AltExit = &AltExitSpec{
			Entry: cloneConditions(n.AltExit.Entry),
			Exit:  cloneConditions(n.AltExit.Exit),
		}
	case n.Scaling != nil:
		s := *n.Scaling
		out.Scaling = &s
	case n.Call != nil:
		c := *n.Call
		out.Call = &c
	}
	if n.Slots != nil {
		out.Slots = make(map[string][]*Node, len(n.Slots))
		for slot, kids := range n.Slots {
			cloned := make([]*Node, len(kids))
			for i, kid := range kids {
				cloned[i] = kid.Clone()
			}
			out.Slots[slot] = cloned
		}
	}
	return out
}

func cloneConditions(conds []Condition) []Condition {
	if conds == nil {
		return nil
	}
	out := make([]Condition, len(conds))
	for i, c := range conds {
		out[i] = c
		if c.RHS != nil {
			rhs := *c.RHS
			out[i].RHS = &rhs
		}
	}
	return out
}

// NormalizeTicker is domain.NormalizeTicker, re-exported for the package's
// own callers.
func NormalizeTicker(t string) string {
	return domain.NormalizeTicker(t)
}
