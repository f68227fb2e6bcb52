package tree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CompressionStats reports what a compression pass did. It is a plain value
// for logging and dashboards, never persisted.
type CompressionStats struct {
	OriginalNodes    int
	CompressedNodes  int
	NodesRemoved     int
	GateChainsMerged int
	Elapsed          time.Duration
}

// ---------------------------------------------------------------------------
// Empty-allocation detection and pruning
// ---------------------------------------------------------------------------

// IsEmptyAllocation reports whether a subtree resolves to no live position.
// A position node is empty iff every listed ticker is the empty sentinel; a
// non-terminal node is empty iff all of its slot children are empty
// (vacuously true with zero children). Call nodes are never considered empty
// because their target is not visible here.
func IsEmptyAllocation(n *Node) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KindPosition:
		if n.Position == nil {
			return true
		}
		for _, t := range n.Position.Tickers {
			if NormalizeTicker(t) != EmptyTicker {
				return false
			}
		}
		return true
	case KindCall:
		return false
	default:
		for _, slot := range n.SlotNames() {
			for _, child := range n.Children(slot) {
				if !IsEmptyAllocation(child) {
					return false
				}
			}
		}
		return true
	}
}

// PruneEmptyBranches recursively drops children that are empty allocations
// and returns nil when the whole subtree contributes nothing. The input node
// is mutated; callers needing the original must clone first.
func PruneEmptyBranches(n *Node) *Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindPosition:
		if IsEmptyAllocation(n) {
			return nil
		}
		return n
	case KindCall:
		return n
	}

	liveChildren := 0
	for _, slot := range n.SlotNames() {
		kids := n.Children(slot)
		pruned := make([]*Node, 0, len(kids))
		for _, child := range kids {
			if child = PruneEmptyBranches(child); child != nil {
				pruned = append(pruned, child)
				liveChildren++
			}
		}
		n.SetChildren(slot, pruned)
	}
	if liveChildren == 0 {
		return nil
	}
	return n
}

// ---------------------------------------------------------------------------
// Single-child collapsing
// ---------------------------------------------------------------------------

// CollapseSingleChildren recursively replaces a basic node using equal (or
// default) weighting whose next slot holds exactly one child with that child.
// Nodes with explicit or volatility weighting are left alone, since the
// weight metadata would be lost.
func CollapseSingleChildren(n *Node) *Node {
	if n == nil {
		return nil
	}
	for _, slot := range n.SlotNames() {
		kids := n.Children(slot)
		for i, child := range kids {
			kids[i] = CollapseSingleChildren(child)
		}
	}
	if n.Kind != KindBasic {
		return n
	}
	if n.Weighting.Mode != WeightEqual && n.Weighting.Mode != "" {
		return n
	}
	next := n.Children(SlotNext)
	if len(next) != 1 || next[0] == nil {
		return n
	}
	child := next[0]
	// The wrapper's explicit percentage within its own parent moves to the
	// surviving child.
	if n.Weight != nil {
		w := *n.Weight
		child.Weight = &w
	}
	return child
}

// ---------------------------------------------------------------------------
// Structural hashing
// ---------------------------------------------------------------------------

// SubtreeHash returns a structural fingerprint of a subtree: kind, sorted
// positions, weighting, serialized conditions, and per-slot child hashes.
// It is a content hash for equivalence testing only, never a node identity.
func SubtreeHash(n *Node) string {
	if n == nil {
		return "nil"
	}
	var b strings.Builder
	b.WriteString(string(n.Kind))
	b.WriteByte('|')
	fmt.Fprintf(&b, "w:%s:%d:%s", n.Weighting.Mode, n.Weighting.VolWindow, n.Weighting.Fallback)
	if n.Weight != nil {
		fmt.Fprintf(&b, ":%g", *n.Weight)
	}
	b.WriteByte('|')

	switch n.Kind {
	case KindPosition:
		if n.Position != nil {
			tickers := make([]string, 0, len(n.Position.Tickers))
			for _, t := range n.Position.Tickers {
				tickers = append(tickers, NormalizeTicker(t))
			}
			sort.Strings(tickers)
			b.WriteString(strings.Join(tickers, ","))
		}
	case KindFunction:
		if n.Function != nil {
			fmt.Fprintf(&b, "fn:%s:%d:%g:%t", n.Function.Metric, n.Function.Window, n.Function.Pick, n.Function.Bottom)
		}
	case KindNumbered:
		if n.Numbered != nil {
			fmt.Fprintf(&b, "num:%s:%d:", n.Numbered.Mode, n.Numbered.Need)
			hashConditions(&b, n.Numbered.Items)
		}
	case KindAltExit:
		if n.AltExit != nil {
			b.WriteString("entry:")
			hashConditions(&b, n.AltExit.Entry)
			b.WriteString("exit:")
			hashConditions(&b, n.AltExit.Exit)
		}
	case KindScaling:
		if n.Scaling != nil {
			fmt.Fprintf(&b, "scale:%s:%s:%d:%g:%g", NormalizeTicker(n.Scaling.Ticker), n.Scaling.Metric, n.Scaling.Window, n.Scaling.Low, n.Scaling.High)
		}
	case KindCall:
		if n.Call != nil {
			fmt.Fprintf(&b, "call:%s", n.Call.TargetID)
		}
	case KindIndicator:
		if n.Gate != nil {
			hashConditions(&b, n.Gate.Conditions)
		}
	}

	for _, slot := range n.SlotNames() {
		b.WriteByte('|')
		b.WriteString(slot)
		b.WriteByte('=')
		for _, child := range n.Children(slot) {
			b.WriteString(SubtreeHash(child))
			b.WriteByte(';')
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func hashConditions(b *strings.Builder, conds []Condition) {
	for _, c := range conds {
		fmt.Fprintf(b, "(%s:%s:%d:%s:%g:%d", NormalizeTicker(c.Ticker), c.Metric, c.Window, c.Op, c.Threshold, c.ForDays)
		if c.RHS != nil {
			fmt.Fprintf(b, ":rhs:%s:%s:%d", NormalizeTicker(c.RHS.Ticker), c.RHS.Metric, c.RHS.Window)
		}
		b.WriteByte(')')
	}
}

// slotListsEqual reports whether two child lists are structurally identical,
// comparing slot-by-slot by hash.
func slotListsEqual(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if SubtreeHash(a[i]) != SubtreeHash(b[i]) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Gate-chain merging
// ---------------------------------------------------------------------------

// MergeGateChains collapses nested else-if ladders: when an indicator node's
// else branch is a single nested indicator whose then branch is structurally
// identical to the outer then branch, the condition lists are concatenated
// (outer AND inner) and the nested else replaces the outer else. The merge is
// retried on the same node, since chains can collapse more than once.
func MergeGateChains(n *Node, merged *int) *Node {
	if n == nil {
		return nil
	}
	for _, slot := range n.SlotNames() {
		kids := n.Children(slot)
		for i, child := range kids {
			kids[i] = MergeGateChains(child, merged)
		}
	}
	if n.Kind != KindIndicator || n.Gate == nil {
		return n
	}
	for {
		elseKids := n.Children(SlotElse)
		if len(elseKids) != 1 || elseKids[0] == nil {
			return n
		}
		inner := elseKids[0]
		if inner.Kind != KindIndicator || inner.Gate == nil {
			return n
		}
		if !slotListsEqual(n.Children(SlotThen), inner.Children(SlotThen)) {
			return n
		}
		n.Gate.Conditions = append(n.Gate.Conditions, inner.Gate.Conditions...)
		n.SetChildren(SlotElse, inner.Children(SlotElse))
		if merged != nil {
			*merged++
		}
	}
}

// ---------------------------------------------------------------------------
// Orchestration
// ---------------------------------------------------------------------------

// CompressForBacktest runs prune, collapse, and merge over a deep copy of the
// input tree. A nil result with full removal stats means the whole strategy
// pruned away, which is a valid empty strategy rather than an error. The pass
// is idempotent: compressing a compressed tree changes nothing.
func CompressForBacktest(root *Node) (*Node, CompressionStats) {
	start := time.Now()
	checkSlotsDeep(root)
	stats := CompressionStats{OriginalNodes: CountNodes(root)}

	out := PruneEmptyBranches(root.Clone())
	if out != nil {
		out = CollapseSingleChildren(out)
		out = MergeGateChains(out, &stats.GateChainsMerged)
	}

	stats.CompressedNodes = CountNodes(out)
	stats.NodesRemoved = stats.OriginalNodes - stats.CompressedNodes
	stats.Elapsed = time.Since(start)
	return out, stats
}

// checkSlotsDeep enforces the slot contract over a whole tree before the
// compiler starts rewriting it.
func checkSlotsDeep(n *Node) {
	if n == nil {
		return
	}
	n.CheckSlots()
	for _, kids := range n.Slots {
		for _, kid := range kids {
			checkSlotsDeep(kid)
		}
	}
}
