// Package ordering plans moves inside dense, 1-based ordered collections.
//
// A container holds N live items whose orders are exactly {1..N}. Every
// change to a container is described by a Plan: a list of range shifts over
// sibling orders plus the moved item's final position. Storage layers
// translate a Plan into set-based updates; Apply runs it in memory.
package ordering

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotDense is returned by CheckDense when orders are not exactly {1..N}.
var ErrNotDense = errors.New("orders are not dense")

// Item is an ordered element of a container. P carries the kind-specific payload.
type Item[P any] struct {
	ID          uint64 `json:"id"`
	Order       int    `json:"order"`
	ContainerID uint64 `json:"container_id"`
	Payload     P      `json:"payload"`
}

// Shift adds Delta to every sibling in ContainerID whose order lies in
// [From, To]. To == 0 means the range is unbounded above.
type Shift struct {
	ContainerID uint64 `json:"container_id"`
	From        int    `json:"from"`
	To          int    `json:"to,omitempty"`
	Delta       int    `json:"delta"`
}

// Contains reports whether order falls inside the shift range.
func (s Shift) Contains(order int) bool {
	if order < s.From {
		return false
	}
	return s.To == 0 || order <= s.To
}

// Move describes a requested move. DestSize is the number of live items in
// ToContainer before the move (including the moved item when the container
// does not change).
type Move struct {
	ItemID        uint64
	FromContainer uint64
	FromOrder     int
	ToContainer   uint64
	Target        int
	DestSize      int
}

// Plan is the outcome of PlanMove or PlanRemove.
type Plan struct {
	ItemID        uint64  `json:"item_id"`
	FromContainer uint64  `json:"from_container"`
	FromOrder     int     `json:"from_order"`
	ToContainer   uint64  `json:"to_container"`
	ToOrder       int     `json:"to_order"`
	NoOp          bool    `json:"no_op"`
	Shifts        []Shift `json:"shifts,omitempty"`
}

// SameContainer reports whether the plan keeps the item in its container.
func (p Plan) SameContainer() bool {
	return p.FromContainer == p.ToContainer
}

// Containers returns the distinct containers touched by the plan.
func (p Plan) Containers() []uint64 {
	if p.SameContainer() {
		return []uint64{p.FromContainer}
	}
	return []uint64{p.FromContainer, p.ToContainer}
}

// ClampTarget maps a requested 1-based target onto a valid position. Inside
// the same container the last valid slot is size; in another container it is
// size+1 (append).
func ClampTarget(target, size int, sameContainer bool) int {
	upper := size
	if !sameContainer {
		upper = size + 1
	}
	if upper < 1 {
		upper = 1
	}
	if target < 1 {
		return 1
	}
	if target > upper {
		return upper
	}
	return target
}

// PlanMove computes the sibling shifts for a move.
//
// Same container, moving forward (new > old): siblings in (old, new] move
// down by one. Moving backward (new < old): siblings in [new, old) move up by
// one. The emitted shift spans [min, max] and therefore includes the moved
// item itself; appliers must set the moved item to ToOrder instead of
// shifting it.
//
// Across containers: source siblings after old close the gap, destination
// siblings at or after target open a slot.
func PlanMove(m Move) Plan {
	same := m.FromContainer == m.ToContainer
	target := ClampTarget(m.Target, m.DestSize, same)

	p := Plan{
		ItemID:        m.ItemID,
		FromContainer: m.FromContainer,
		FromOrder:     m.FromOrder,
		ToContainer:   m.ToContainer,
		ToOrder:       target,
	}

	if same {
		switch {
		case target == m.FromOrder:
			p.NoOp = true
		case target > m.FromOrder:
			p.Shifts = []Shift{{ContainerID: m.FromContainer, From: m.FromOrder, To: target, Delta: -1}}
		default:
			p.Shifts = []Shift{{ContainerID: m.FromContainer, From: target, To: m.FromOrder, Delta: 1}}
		}
		return p
	}

	p.Shifts = []Shift{
		{ContainerID: m.FromContainer, From: m.FromOrder + 1, Delta: -1},
		{ContainerID: m.ToContainer, From: target, Delta: 1},
	}
	return p
}

// PlanRemove computes the compaction that follows removing the item at order.
func PlanRemove(itemID, containerID uint64, order int) Plan {
	return Plan{
		ItemID:        itemID,
		FromContainer: containerID,
		FromOrder:     order,
		ToContainer:   containerID,
		ToOrder:       0,
		Shifts:        []Shift{{ContainerID: containerID, From: order + 1, Delta: -1}},
	}
}

// Apply runs a move plan over an in-memory item set and returns a new slice
// sorted by container and order. The input is not modified.
func Apply[P any](items []Item[P], p Plan) []Item[P] {
	out := make([]Item[P], 0, len(items))
	for _, it := range items {
		if it.ID == p.ItemID {
			if !p.NoOp {
				it.ContainerID = p.ToContainer
				it.Order = p.ToOrder
			}
			out = append(out, it)
			continue
		}
		if !p.NoOp {
			for _, s := range p.Shifts {
				if it.ContainerID == s.ContainerID && s.Contains(it.Order) {
					it.Order += s.Delta
					break
				}
			}
		}
		out = append(out, it)
	}
	Sort(out)
	return out
}

// Remove drops the item with the given id and compacts its container.
func Remove[P any](items []Item[P], id uint64) []Item[P] {
	var plan *Plan
	for _, it := range items {
		if it.ID == id {
			p := PlanRemove(it.ID, it.ContainerID, it.Order)
			plan = &p
			break
		}
	}
	if plan == nil {
		return append([]Item[P](nil), items...)
	}

	out := make([]Item[P], 0, len(items)-1)
	for _, it := range items {
		if it.ID == id {
			continue
		}
		for _, s := range plan.Shifts {
			if it.ContainerID == s.ContainerID && s.Contains(it.Order) {
				it.Order += s.Delta
			}
		}
		out = append(out, it)
	}
	Sort(out)
	return out
}

// Append adds item at the end of its container.
func Append[P any](items []Item[P], item Item[P]) []Item[P] {
	item.Order = len(InContainer(items, item.ContainerID)) + 1
	out := append(append([]Item[P](nil), items...), item)
	Sort(out)
	return out
}

// InContainer returns the items of one container in order.
func InContainer[P any](items []Item[P], containerID uint64) []Item[P] {
	var out []Item[P]
	for _, it := range items {
		if it.ContainerID == containerID {
			out = append(out, it)
		}
	}
	Sort(out)
	return out
}

// Sort orders items by container, then order, then id.
func Sort[P any](items []Item[P]) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ContainerID != b.ContainerID {
			return a.ContainerID < b.ContainerID
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
}

// CheckDense verifies that orders form exactly {1..len(orders)}.
func CheckDense(orders []int) error {
	seen := make([]bool, len(orders)+1)
	for _, o := range orders {
		if o < 1 || o > len(orders) {
			return fmt.Errorf("%w: order %d outside 1..%d", ErrNotDense, o, len(orders))
		}
		if seen[o] {
			return fmt.Errorf("%w: duplicate order %d", ErrNotDense, o)
		}
		seen[o] = true
	}
	return nil
}
