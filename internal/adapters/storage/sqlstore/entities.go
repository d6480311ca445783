package sqlstore

import (
	"context"
	"database/sql"

	"github.com/hylla/pipedesk/internal/domain"
)

const (
	projectColumns    = `id, name, description, funnel_id, stage_id, created_at, updated_at`
	subprojectColumns = `id, name, project_id, parent_subproject_id, funnel_id, stage_id, created_at, updated_at`
)

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO projects(`+projectColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), p.ID, p.Name, p.Description, nullableID(p.FunnelID), nullableID(p.StageID), ts(p.CreatedAt), ts(p.UpdatedAt)); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityProject,
			EntityID:   p.ID,
			FunnelID:   p.FunnelID,
			Operation:  domain.ChangeOperationCreate,
			Metadata:   map[string]string{"name": p.Name},
			OccurredAt: p.CreatedAt,
		})
	})
}

// UpdateProject updates details and placement, recording placement transitions.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanProject(tx.QueryRowContext(ctx, r.rebind(`
			SELECT `+projectColumns+` FROM projects WHERE id = ?
		`), p.ID))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE projects
			SET name = ?, description = ?, funnel_id = ?, stage_id = ?, updated_at = ?
			WHERE id = ?
		`), p.Name, p.Description, nullableID(p.FunnelID), nullableID(p.StageID), ts(p.UpdatedAt), p.ID); err != nil {
			return err
		}
		op, metadata := classifyPlacement(prev.Placement(), p.Placement())
		metadata["name"] = p.Name
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntityProject,
			EntityID:   p.ID,
			FunnelID:   firstFunnel(p.FunnelID, prev.FunnelID),
			Operation:  op,
			Metadata:   metadata,
			OccurredAt: p.UpdatedAt,
		})
	})
}

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.db.QueryRowContext(ctx, r.rebind(`
		SELECT `+projectColumns+` FROM projects WHERE id = ?
	`), id))
}

// ListProjects lists projects in creation order.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject deletes a project and its comments.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, "projects", domain.EntityProject, domain.CommentTargetProject, id)
}

// CreateSubProject creates subproject.
func (r *Repository) CreateSubProject(ctx context.Context, sp domain.SubProject) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO subprojects(`+subprojectColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`),
			sp.ID,
			sp.Name,
			nullableID(sp.ProjectID),
			nullableID(sp.ParentSubprojectID),
			nullableID(sp.FunnelID),
			nullableID(sp.StageID),
			ts(sp.CreatedAt),
			ts(sp.UpdatedAt),
		); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntitySubProject,
			EntityID:   sp.ID,
			FunnelID:   sp.FunnelID,
			Operation:  domain.ChangeOperationCreate,
			Metadata: map[string]string{
				"name":                 sp.Name,
				"project_id":           sp.ProjectID,
				"parent_subproject_id": sp.ParentSubprojectID,
			},
			OccurredAt: sp.CreatedAt,
		})
	})
}

// UpdateSubProject updates name, parents, and placement.
func (r *Repository) UpdateSubProject(ctx context.Context, sp domain.SubProject) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanSubProject(tx.QueryRowContext(ctx, r.rebind(`
			SELECT `+subprojectColumns+` FROM subprojects WHERE id = ?
		`), sp.ID))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`
			UPDATE subprojects
			SET name = ?, project_id = ?, parent_subproject_id = ?, funnel_id = ?, stage_id = ?, updated_at = ?
			WHERE id = ?
		`),
			sp.Name,
			nullableID(sp.ProjectID),
			nullableID(sp.ParentSubprojectID),
			nullableID(sp.FunnelID),
			nullableID(sp.StageID),
			ts(sp.UpdatedAt),
			sp.ID,
		); err != nil {
			return err
		}
		op, metadata := classifyPlacement(prev.Placement(), sp.Placement())
		metadata["name"] = sp.Name
		if prev.ProjectID != sp.ProjectID || prev.ParentSubprojectID != sp.ParentSubprojectID {
			metadata["project_id"] = sp.ProjectID
			metadata["parent_subproject_id"] = sp.ParentSubprojectID
			if op == domain.ChangeOperationUpdate {
				op = domain.ChangeOperationMove
			}
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: domain.EntitySubProject,
			EntityID:   sp.ID,
			FunnelID:   firstFunnel(sp.FunnelID, prev.FunnelID),
			Operation:  op,
			Metadata:   metadata,
			OccurredAt: sp.UpdatedAt,
		})
	})
}

// GetSubProject returns subproject.
func (r *Repository) GetSubProject(ctx context.Context, id string) (domain.SubProject, error) {
	return scanSubProject(r.db.QueryRowContext(ctx, r.rebind(`
		SELECT `+subprojectColumns+` FROM subprojects WHERE id = ?
	`), id))
}

// ListSubProjects lists subprojects in creation order.
func (r *Repository) ListSubProjects(ctx context.Context) ([]domain.SubProject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subprojectColumns+` FROM subprojects ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SubProject{}
	for rows.Next() {
		sp, scanErr := scanSubProject(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// DeleteSubProject deletes a subproject and its comments.
func (r *Repository) DeleteSubProject(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, "subprojects", domain.EntitySubProject, domain.CommentTargetSubProject, id)
}

func (r *Repository) deleteEntity(ctx context.Context, table string, entityType domain.EntityType, targetType domain.CommentTargetType, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var funnelID sql.NullString
		if err := tx.QueryRowContext(ctx, r.rebind(`SELECT funnel_id FROM `+table+` WHERE id = ?`), id).Scan(&funnelID); err != nil {
			return translateScanErr(err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`
			DELETE FROM comments WHERE target_type = ? AND target_id = ?
		`), string(targetType), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM `+table+` WHERE id = ?`), id); err != nil {
			return err
		}
		return r.insertChangeEvent(ctx, tx, domain.ChangeEvent{
			EntityType: entityType,
			EntityID:   id,
			FunnelID:   idFromNull(funnelID),
			Operation:  domain.ChangeOperationDelete,
		})
	})
}

// classifyPlacement derives the ledger operation and metadata for a placement transition.
func classifyPlacement(prev, next domain.Placement) (domain.ChangeOperation, map[string]string) {
	metadata := map[string]string{}
	if prev == next {
		return domain.ChangeOperationUpdate, metadata
	}
	metadata["from_funnel_id"] = prev.FunnelID
	metadata["from_stage_id"] = prev.StageID
	metadata["to_funnel_id"] = next.FunnelID
	metadata["to_stage_id"] = next.StageID
	if next.IsZero() {
		return domain.ChangeOperationUnassign, metadata
	}
	return domain.ChangeOperationMove, metadata
}

func firstFunnel(next, prev string) string {
	if next != "" {
		return next
	}
	return prev
}

// scanProject handles scan project.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		funnelID   sql.NullString
		stageID    sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &funnelID, &stageID, &createdRaw, &updatedRaw); err != nil {
		return domain.Project{}, translateScanErr(err)
	}
	p.FunnelID = idFromNull(funnelID)
	p.StageID = idFromNull(stageID)
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}

// scanSubProject handles scan subproject.
func scanSubProject(s scanner) (domain.SubProject, error) {
	var (
		sp         domain.SubProject
		projectID  sql.NullString
		parentID   sql.NullString
		funnelID   sql.NullString
		stageID    sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&sp.ID, &sp.Name, &projectID, &parentID, &funnelID, &stageID, &createdRaw, &updatedRaw); err != nil {
		return domain.SubProject{}, translateScanErr(err)
	}
	sp.ProjectID = idFromNull(projectID)
	sp.ParentSubprojectID = idFromNull(parentID)
	sp.FunnelID = idFromNull(funnelID)
	sp.StageID = idFromNull(stageID)
	sp.CreatedAt = parseTS(createdRaw)
	sp.UpdatedAt = parseTS(updatedRaw)
	return sp, nil
}
