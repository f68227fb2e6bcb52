// Package collect walks a decision tree before simulation: it discovers every
// referenced ticker, resolves call-chain references, computes the maximum
// historical lookback the simulator must pre-fetch, and reports field-level
// validation errors. The walk never aborts on a bad field; it records the
// error and keeps going so the caller sees every problem at once.
package collect

import (
	"fmt"
	"math"
	"sort"

	"treequant/internal/domain"
	"treequant/internal/indicators"
	"treequant/internal/tree"
)

// Library is the lookup of named call-chain sub-trees by id.
type Library map[string]*tree.Node

// FieldRef points at the node and field where a ticker was first referenced,
// for error attribution.
type FieldRef struct {
	NodeID string
	Field  string
}

// ValidationError is a single field-scoped problem found during the walk.
type ValidationError struct {
	NodeID  string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("node %s, field %s: %s", e.NodeID, e.Field, e.Message)
}

// Inputs is the collector's output. Tickers is sorted and has ratio tickers
// expanded into their components. MaxLookback is in trading days. Errors may
// be non-empty alongside a complete result; whether a run may proceed anyway
// is the caller's policy.
type Inputs struct {
	Tickers     []string
	FirstUse    map[string]FieldRef
	MaxLookback int
	Errors      []ValidationError
}

// Collect walks the tree rooted at root, resolving call references against
// lib, and returns the complete backtest inputs. A nil root yields an empty
// result, not an error.
func Collect(root *tree.Node, lib Library) *Inputs {
	c := &collector{
		lib:      lib,
		firstUse: make(map[string]FieldRef),
	}
	c.walk(root, nil)

	out := &Inputs{
		FirstUse:    c.firstUse,
		MaxLookback: c.maxLookback,
		Errors:      c.errors,
	}
	out.Tickers = make([]string, 0, len(c.firstUse))
	for t := range c.firstUse {
		out.Tickers = append(out.Tickers, t)
	}
	sort.Strings(out.Tickers)
	return out
}

// ---------------------------------------------------------------------------
// Collector walk
// ---------------------------------------------------------------------------

type collector struct {
	lib         Library
	firstUse    map[string]FieldRef
	maxLookback int
	errors      []ValidationError
	instances   int
}

func (c *collector) errorf(nodeID, field, format string, args ...any) {
	c.errors = append(c.errors, ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// addTicker records a ticker reference, expanding ratio tickers into their
// two components. The empty sentinel is skipped silently; a condition that
// requires a ticker reports its own error.
func (c *collector) addTicker(raw, nodeID, field string) {
	t := domain.NormalizeTicker(raw)
	if t == tree.EmptyTicker {
		return
	}
	num, den, ok := domain.SplitRatio(t)
	if ok {
		c.addTicker(num, nodeID, field)
		c.addTicker(den, nodeID, field)
		return
	}
	if _, seen := c.firstUse[t]; !seen {
		c.firstUse[t] = FieldRef{NodeID: nodeID, Field: field}
	}
}

func (c *collector) noteLookback(days int) {
	if days > c.maxLookback {
		c.maxLookback = days
	}
}

// checkCondition validates one condition line and accounts its ticker and
// lookback contributions. field names the owning list for error attribution.
func (c *collector) checkCondition(nodeID, field string, cond tree.Condition) {
	if domain.NormalizeTicker(cond.Ticker) == tree.EmptyTicker {
		c.errorf(nodeID, field, "condition is missing a ticker")
	} else {
		c.addTicker(cond.Ticker, nodeID, field)
	}
	if !indicators.Windowless(cond.Metric) && cond.Window < 1 {
		c.errorf(nodeID, field, "%s requires a window of at least 1, got %d", cond.Metric, cond.Window)
	}
	extra := 0
	if cond.ForDays > 1 {
		extra = cond.ForDays - 1
	}
	c.noteLookback(indicators.Lookback(cond.Metric, cond.Window) + extra)

	if rhs := cond.RHS; rhs != nil {
		if domain.NormalizeTicker(rhs.Ticker) == tree.EmptyTicker {
			c.errorf(nodeID, field, "comparison side is missing a ticker")
		} else {
			c.addTicker(rhs.Ticker, nodeID, field)
		}
		if !indicators.Windowless(rhs.Metric) && rhs.Window < 1 {
			c.errorf(nodeID, field, "%s requires a window of at least 1, got %d", rhs.Metric, rhs.Window)
		}
		c.noteLookback(indicators.Lookback(rhs.Metric, rhs.Window) + extra)
	}
}

// checkWeighting validates a parent's weighting mode against its children.
func (c *collector) checkWeighting(n *tree.Node) {
	w := n.Weighting
	switch w.Mode {
	case tree.WeightDefined, tree.WeightCapped:
		for _, slot := range n.SlotNames() {
			for _, child := range n.Children(slot) {
				if child == nil {
					continue
				}
				switch {
				case child.Weight == nil || !isFinite(*child.Weight):
					c.errorf(child.ID, "weight", "child of a %s-weighted node needs a percentage", w.Mode)
				case *child.Weight < 0:
					c.errorf(child.ID, "weight", "weight percentage cannot be negative")
				case w.Mode == tree.WeightCapped && *child.Weight > 100:
					c.errorf(child.ID, "weight", "capped weight cannot exceed 100%%")
				}
			}
		}
		if w.Mode == tree.WeightCapped {
			if domain.NormalizeTicker(w.Fallback) == tree.EmptyTicker {
				c.errorf(n.ID, "fallback", "capped weighting needs a fallback ticker")
			} else {
				c.addTicker(w.Fallback, n.ID, "fallback")
			}
		}
	case tree.WeightInverse, tree.WeightPro:
		if w.VolWindow < 1 {
			c.errorf(n.ID, "volWindow", "volatility weighting needs a window of at least 1, got %d", w.VolWindow)
		} else {
			c.noteLookback(indicators.Lookback(domain.MetricStdDevReturns, w.VolWindow))
		}
	}
}

func (c *collector) walk(n *tree.Node, callStack []string) {
	if n == nil {
		return
	}

	c.checkWeighting(n)

	switch n.Kind {
	case tree.KindPosition:
		if n.Position != nil {
			for _, t := range n.Position.Tickers {
				c.addTicker(t, n.ID, "tickers")
			}
		}

	case tree.KindFunction:
		if fn := n.Function; fn != nil {
			kids := nonNilChildren(n, tree.SlotNext)
			switch {
			case !isFinite(fn.Pick):
				c.errorf(n.ID, "pick", "pick count must be a finite number")
			case fn.Pick < 1:
				c.errorf(n.ID, "pick", "pick count must be at least 1, got %v", fn.Pick)
			case int(fn.Pick) > kids:
				c.errorf(n.ID, "pick", "pick count %v exceeds the %d declared children", fn.Pick, kids)
			}
			if !indicators.Windowless(fn.Metric) && fn.Window < 1 {
				c.errorf(n.ID, "window", "%s requires a window of at least 1, got %d", fn.Metric, fn.Window)
			}
			c.noteLookback(indicators.Lookback(fn.Metric, fn.Window))
		}

	case tree.KindIndicator:
		if n.Gate != nil {
			for _, cond := range n.Gate.Conditions {
				c.checkCondition(n.ID, "conditions", cond)
			}
		}

	case tree.KindNumbered:
		if n.Numbered != nil {
			for _, cond := range n.Numbered.Items {
				c.checkCondition(n.ID, "items", cond)
			}
		}

	case tree.KindAltExit:
		if n.AltExit != nil {
			for _, cond := range n.AltExit.Entry {
				c.checkCondition(n.ID, "entryConditions", cond)
			}
			for _, cond := range n.AltExit.Exit {
				c.checkCondition(n.ID, "exitConditions", cond)
			}
		}

	case tree.KindScaling:
		if sc := n.Scaling; sc != nil {
			if domain.NormalizeTicker(sc.Ticker) == tree.EmptyTicker {
				c.errorf(n.ID, "scaleTicker", "scaling needs an indicator ticker")
			} else {
				c.addTicker(sc.Ticker, n.ID, "scaleTicker")
			}
			if !indicators.Windowless(sc.Metric) && sc.Window < 1 {
				c.errorf(n.ID, "scaleWindow", "%s requires a window of at least 1, got %d", sc.Metric, sc.Window)
			} else {
				c.noteLookback(indicators.Lookback(sc.Metric, sc.Window))
			}
		}

	case tree.KindCall:
		c.walkCall(n, callStack)
		return // call nodes have no slots of their own
	}

	for _, slot := range n.SlotNames() {
		for _, child := range n.Children(slot) {
			c.walk(child, callStack)
		}
	}
}

// walkCall resolves a call node against the library and recurses into a
// freshly instantiated copy of the target. The call stack carries every
// target id on the path from the root, so a self or mutual reference is
// reported once and the offending subtree treated as absent.
func (c *collector) walkCall(n *tree.Node, callStack []string) {
	id := ""
	if n.Call != nil {
		id = n.Call.TargetID
	}
	if id == "" {
		c.errorf(n.ID, "call", "call has no target")
		return
	}
	target, ok := c.lib[id]
	if !ok || target == nil {
		c.errorf(n.ID, "call", "call target %q not found", id)
		return
	}
	for _, seen := range callStack {
		if seen == id {
			c.errorf(n.ID, "call", "call target %q forms a reference cycle", id)
			return
		}
	}
	c.walk(c.instantiate(target), append(callStack, id))
}

// instantiate clones a library tree with fresh internal ids so sibling
// instantiations of the same call do not alias each other.
func (c *collector) instantiate(target *tree.Node) *tree.Node {
	c.instances++
	clone := target.Clone()
	rewriteIDs(clone, c.instances)
	return clone
}

func rewriteIDs(n *tree.Node, seq int) {
	if n == nil {
		return
	}
	n.ID = fmt.Sprintf("%s@%d", n.ID, seq)
	for _, slot := range n.SlotNames() {
		for _, child := range n.Children(slot) {
			rewriteIDs(child, seq)
		}
	}
}

func nonNilChildren(n *tree.Node, slot string) int {
	count := 0
	for _, child := range n.Children(slot) {
		if child != nil {
			count++
		}
	}
	return count
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// ---------------------------------------------------------------------------
// Ticker passes
// ---------------------------------------------------------------------------

// AllTickers returns every ticker referenced anywhere in the tree, ratio
// tickers expanded, sorted. Equivalent to Collect(root, lib).Tickers without
// the validation overhead mattering to callers.
func AllTickers(root *tree.Node, lib Library) []string {
	return Collect(root, lib).Tickers
}

// PositionTickers returns only the tickers a strategy can actually hold:
// position allocations and capped-weighting fallbacks.
func PositionTickers(root *tree.Node, lib Library) []string {
	set := make(map[string]bool)
	walkResolved(root, lib, nil, func(n *tree.Node) {
		if n.Kind == tree.KindPosition && n.Position != nil {
			for _, t := range n.Position.Tickers {
				addExpanded(set, t)
			}
		}
		if n.Weighting.Mode == tree.WeightCapped {
			addExpanded(set, n.Weighting.Fallback)
		}
	})
	return sortedKeys(set)
}

// IndicatorTickers returns only the tickers used as indicator inputs:
// condition sides, function sorts run over position tickers so they are not
// included here, scaling sources are.
func IndicatorTickers(root *tree.Node, lib Library) []string {
	set := make(map[string]bool)
	walkResolved(root, lib, nil, func(n *tree.Node) {
		for _, cond := range n.Conditions() {
			addExpanded(set, cond.Ticker)
			if cond.RHS != nil {
				addExpanded(set, cond.RHS.Ticker)
			}
		}
		if n.Kind == tree.KindScaling && n.Scaling != nil {
			addExpanded(set, n.Scaling.Ticker)
		}
	})
	return sortedKeys(set)
}

// ConditionLines returns every condition in the tree with call references
// resolved, in walk order. Scaling nodes contribute a synthetic gt-zero line
// for their indicator source so callers see every indicator site.
func ConditionLines(root *tree.Node, lib Library) []tree.Condition {
	var out []tree.Condition
	walkResolved(root, lib, nil, func(n *tree.Node) {
		out = append(out, n.Conditions()...)
		if n.Kind == tree.KindScaling && n.Scaling != nil {
			out = append(out, tree.Condition{
				Ticker: n.Scaling.Ticker,
				Metric: n.Scaling.Metric,
				Window: n.Scaling.Window,
				Op:     tree.CmpGT,
			})
		}
	})
	return out
}

// walkResolved visits every node reachable from root with call references
// resolved, silently skipping unresolved or cyclic calls. The validation walk
// is responsible for reporting those.
func walkResolved(n *tree.Node, lib Library, callStack []string, visit func(*tree.Node)) {
	if n == nil {
		return
	}
	if n.Kind == tree.KindCall {
		if n.Call == nil {
			return
		}
		id := n.Call.TargetID
		target, ok := lib[id]
		if !ok || target == nil {
			return
		}
		for _, seen := range callStack {
			if seen == id {
				return
			}
		}
		walkResolved(target, lib, append(callStack, id), visit)
		return
	}
	visit(n)
	for _, slot := range n.SlotNames() {
		for _, child := range n.Children(slot) {
			walkResolved(child, lib, callStack, visit)
		}
	}
}

func addExpanded(set map[string]bool, raw string) {
	t := domain.NormalizeTicker(raw)
	if t == tree.EmptyTicker {
		return
	}
	if num, den, ok := domain.SplitRatio(t); ok {
		addExpanded(set, num)
		addExpanded(set, den)
		return
	}
	set[t] = true
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
