package repository

import (
	"time"

	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/ordering"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// orderedTable translates ordering plans into set-based updates on one
// table. Every method expects to run inside a transaction.
type orderedTable struct {
	newRow    func() models.Ordered
	container string
}

func (t orderedTable) model(tx *gorm.DB) *gorm.DB {
	return tx.Model(t.newRow())
}

// lock reads the row with id, taking a row lock where the dialect has one.
func (t orderedTable) lock(tx *gorm.DB, id uint64) (models.Ordered, error) {
	row := t.newRow()
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(row, id).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (t orderedTable) count(tx *gorm.DB, containerID uint64) (int, error) {
	var n int64
	err := t.model(tx).Where(t.container+" = ?", containerID).Count(&n).Error
	return int(n), err
}

// nextOrder returns the append position N+1 of a container.
func (t orderedTable) nextOrder(tx *gorm.DB, containerID uint64) (int, error) {
	n, err := t.count(tx, containerID)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (t orderedTable) shift(tx *gorm.DB, s ordering.Shift) error {
	q := t.model(tx).Where(t.container+" = ? AND sort_order >= ?", s.ContainerID, s.From)
	if s.To != 0 {
		q = q.Where("sort_order <= ?", s.To)
	}
	return q.UpdateColumn("sort_order", gorm.Expr("sort_order + ?", s.Delta)).Error
}

// move applies a move of row id to target in toContainer (nil keeps the
// current container).
func (t orderedTable) move(tx *gorm.DB, id uint64, target int, toContainer *uint64) (ordering.Plan, error) {
	row, err := t.lock(tx, id)
	if err != nil {
		return ordering.Plan{}, err
	}

	from := row.GetContainerID()
	to := from
	if toContainer != nil {
		to = *toContainer
	}

	size, err := t.count(tx, to)
	if err != nil {
		return ordering.Plan{}, err
	}

	plan := ordering.PlanMove(ordering.Move{
		ItemID:        id,
		FromContainer: from,
		FromOrder:     row.GetOrder(),
		ToContainer:   to,
		Target:        target,
		DestSize:      size,
	})
	if plan.NoOp {
		return plan, nil
	}

	if plan.SameContainer() {
		// One statement: the moved row takes its target, the rows it
		// passed over shift by one toward the gap it left.
		s := plan.Shifts[0]
		err := t.model(tx).
			Where(t.container+" = ? AND sort_order BETWEEN ? AND ?", from, s.From, s.To).
			UpdateColumn("sort_order", gorm.Expr("CASE WHEN id = ? THEN ? ELSE sort_order + ? END", id, plan.ToOrder, s.Delta)).
			Error
		return plan, err
	}

	for _, s := range plan.Shifts {
		if err := t.shift(tx, s); err != nil {
			return ordering.Plan{}, err
		}
	}
	err = t.model(tx).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		t.container:  to,
		"sort_order": plan.ToOrder,
	}).Error
	return plan, err
}

// remove compacts the container of row id and soft deletes the row.
func (t orderedTable) remove(tx *gorm.DB, id uint64) (models.Ordered, error) {
	row, err := t.lock(tx, id)
	if err != nil {
		return nil, err
	}

	plan := ordering.PlanRemove(id, row.GetContainerID(), row.GetOrder())
	for _, s := range plan.Shifts {
		if err := t.shift(tx, s); err != nil {
			return nil, err
		}
	}

	err = t.model(tx).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"deleted_at": time.Now(),
		"sort_order": constants.DeletedOrder,
	}).Error
	return row, err
}
