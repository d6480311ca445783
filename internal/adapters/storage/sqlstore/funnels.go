package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/hylla/pipedesk/internal/domain"
)

const stageColumns = `id, funnel_id, name, position, created_at, updated_at`

// CreateFunnel creates funnel.
func (r *Repository) CreateFunnel(ctx context.Context, f domain.Funnel) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO funnels(id, scope, name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`), f.ID, string(f.Scope), f.Name, ts(f.CreatedAt), ts(f.UpdatedAt)); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityFunnel,
			EntityID:   f.ID,
			FunnelID:   f.ID,
			Operation:  domain.ChangeOperationCreate,
			Metadata:   map[string]string{"name": f.Name, "scope": string(f.Scope)},
			OccurredAt: f.CreatedAt,
		})
	})
}

// UpdateFunnel updates the funnel name.
func (r *Repository) UpdateFunnel(ctx context.Context, f domain.Funnel) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE funnels SET scope = ?, name = ?, updated_at = ? WHERE id = ?
		`), string(f.Scope), f.Name, ts(f.UpdatedAt), f.ID)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityFunnel,
			EntityID:   f.ID,
			FunnelID:   f.ID,
			Operation:  domain.ChangeOperationUpdate,
			Metadata:   map[string]string{"name": f.Name},
			OccurredAt: f.UpdatedAt,
		})
	})
}

// GetFunnel returns a funnel with its stages in order.
func (r *Repository) GetFunnel(ctx context.Context, id string) (domain.Funnel, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, scope, name, created_at, updated_at FROM funnels WHERE id = ?
	`), id)
	funnel, err := scanFunnel(row)
	if err != nil {
		return domain.Funnel{}, err
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+stageColumns+` FROM funnel_stages WHERE funnel_id = ? ORDER BY position ASC, id ASC
	`), id)
	if err != nil {
		return domain.Funnel{}, err
	}
	defer rows.Close()
	for rows.Next() {
		stage, scanErr := scanStage(rows)
		if scanErr != nil {
			return domain.Funnel{}, scanErr
		}
		funnel.Stages = append(funnel.Stages, stage)
	}
	return funnel, rows.Err()
}

// ListFunnels lists funnels of scope with nested stages.
func (r *Repository) ListFunnels(ctx context.Context, scope domain.FunnelScope) ([]domain.Funnel, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, scope, name, created_at, updated_at
		FROM funnels
		WHERE scope = ?
		ORDER BY created_at ASC, id ASC
	`), string(scope))
	if err != nil {
		return nil, err
	}
	out := []domain.Funnel{}
	index := map[string]int{}
	for rows.Next() {
		funnel, scanErr := scanFunnel(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		index[funnel.ID] = len(out)
		out = append(out, funnel)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stageRows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT s.id, s.funnel_id, s.name, s.position, s.created_at, s.updated_at
		FROM funnel_stages s
		JOIN funnels f ON f.id = s.funnel_id
		WHERE f.scope = ?
		ORDER BY s.funnel_id ASC, s.position ASC, s.id ASC
	`), string(scope))
	if err != nil {
		return nil, err
	}
	defer stageRows.Close()
	for stageRows.Next() {
		stage, scanErr := scanStage(stageRows)
		if scanErr != nil {
			return nil, scanErr
		}
		if idx, ok := index[stage.FunnelID]; ok {
			out[idx].Stages = append(out[idx].Stages, stage)
		}
	}
	return out, stageRows.Err()
}

// DeleteFunnel deletes a funnel and its stages.
func (r *Repository) DeleteFunnel(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM funnel_stages WHERE funnel_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM funnels WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityFunnel,
			EntityID:   id,
			FunnelID:   id,
			Operation:  domain.ChangeOperationDelete,
		})
	})
}

// CountFunnelReferences counts projects and subprojects placed on funnel id.
func (r *Repository) CountFunnelReferences(ctx context.Context, id string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT
			(SELECT COUNT(*) FROM projects WHERE funnel_id = ?) +
			(SELECT COUNT(*) FROM subprojects WHERE funnel_id = ?)
	`), id, id).Scan(&total)
	return total, err
}

// CreateStage creates stage.
func (r *Repository) CreateStage(ctx context.Context, st domain.Stage) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO funnel_stages(`+stageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
		`), st.ID, st.FunnelID, st.Name, st.Order, ts(st.CreatedAt), ts(st.UpdatedAt)); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityStage,
			EntityID:   st.ID,
			FunnelID:   st.FunnelID,
			Operation:  domain.ChangeOperationCreate,
			Metadata:   map[string]string{"name": st.Name, "order": strconv.Itoa(st.Order)},
			OccurredAt: st.CreatedAt,
		})
	})
}

// UpdateStage updates a stage's name and order.
func (r *Repository) UpdateStage(ctx context.Context, st domain.Stage) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanStage(tx.QueryRowContext(ctx, r.rebind(`
			SELECT `+stageColumns+` FROM funnel_stages WHERE id = ?
		`), st.ID))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE funnel_stages SET funnel_id = ?, name = ?, position = ?, updated_at = ? WHERE id = ?
		`), st.FunnelID, st.Name, st.Order, ts(st.UpdatedAt), st.ID); err != nil {
			return err
		}
		op := domain.ChangeOperationUpdate
		if prev.Name == st.Name && prev.Order != st.Order {
			op = domain.ChangeOperationReorder
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityStage,
			EntityID:   st.ID,
			FunnelID:   st.FunnelID,
			Operation:  op,
			Metadata: map[string]string{
				"name":       st.Name,
				"from_order": strconv.Itoa(prev.Order),
				"to_order":   strconv.Itoa(st.Order),
			},
			OccurredAt: st.UpdatedAt,
		})
	})
}

// GetStage returns stage.
func (r *Repository) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	return scanStage(r.db.QueryRowContext(ctx, r.rebind(`
		SELECT `+stageColumns+` FROM funnel_stages WHERE id = ?
	`), id))
}

// DeleteStage deletes a stage, clears placements that pointed at it, and writes reordered
// sibling orders in the same transaction.
func (r *Repository) DeleteStage(ctx context.Context, id string, reordered []domain.Stage) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		stage, err := scanStage(tx.QueryRowContext(ctx, r.rebind(`
			SELECT `+stageColumns+` FROM funnel_stages WHERE id = ?
		`), id))
		if err != nil {
			return err
		}
		for _, table := range []string{"projects", "subprojects"} {
			if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE `+table+` SET stage_id = NULL WHERE stage_id = ?`), id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM funnel_stages WHERE id = ?`), id); err != nil {
			return err
		}
		if err := r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityStage,
			EntityID:   id,
			FunnelID:   stage.FunnelID,
			Operation:  domain.ChangeOperationDelete,
			Metadata:   map[string]string{"name": stage.Name},
		}); err != nil {
			return err
		}
		if len(reordered) == 0 {
			return nil
		}
		return r.saveStageOrders(ctx, tx, stage.FunnelID, reordered)
	})
}

// SaveStageOrders writes every stage's order for funnelID in one transaction.
func (r *Repository) SaveStageOrders(ctx context.Context, funnelID string, stages []domain.Stage) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return r.saveStageOrders(ctx, tx, funnelID, stages)
	})
}

func (r *Repository) saveStageOrders(ctx context.Context, tx *sql.Tx, funnelID string, stages []domain.Stage) error {
	ids := make([]string, 0, len(stages))
	for _, st := range stages {
		res, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE funnel_stages SET position = ?, updated_at = ? WHERE id = ? AND funnel_id = ?
		`), st.Order, ts(st.UpdatedAt), st.ID, funnelID)
		if err != nil {
			return err
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		ids = append(ids, st.ID)
	}
	return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
		EntityType: domain.EntityFunnel,
		EntityID:   funnelID,
		FunnelID:   funnelID,
		Operation:  domain.ChangeOperationReorder,
		Metadata:   map[string]string{"stage_ids": strings.Join(ids, ",")},
	})
}

// scanFunnel handles scan funnel.
func scanFunnel(s scanner) (domain.Funnel, error) {
	var (
		f          domain.Funnel
		scopeRaw   string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&f.ID, &scopeRaw, &f.Name, &createdRaw, &updatedRaw); err != nil {
		return domain.Funnel{}, translateScanErr(err)
	}
	f.Scope = domain.FunnelScope(scopeRaw)
	f.Stages = []domain.Stage{}
	f.CreatedAt = parseTS(createdRaw)
	f.UpdatedAt = parseTS(updatedRaw)
	return f, nil
}

// scanStage handles scan stage.
func scanStage(s scanner) (domain.Stage, error) {
	var (
		st         domain.Stage
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&st.ID, &st.FunnelID, &st.Name, &st.Order, &createdRaw, &updatedRaw); err != nil {
		return domain.Stage{}, translateScanErr(err)
	}
	st.CreatedAt = parseTS(createdRaw)
	st.UpdatedAt = parseTS(updatedRaw)
	return st, nil
}
