package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hylla/pipedesk/internal/domain"
)

// CreateComment creates comment.
func (r *Repository) CreateComment(ctx context.Context, comment domain.Comment) error {
	target, err := domain.NormalizeCommentTarget(domain.CommentTarget{
		TargetType: comment.TargetType,
		TargetID:   comment.TargetID,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(comment.ID) == "" {
		return domain.ErrInvalidID
	}
	body := strings.TrimSpace(comment.BodyMarkdown)
	if body == "" {
		return domain.ErrInvalidBodyMarkdown
	}
	authorName := strings.TrimSpace(comment.AuthorName)
	if authorName == "" {
		authorName = "pipedesk-user"
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO comments(id, target_type, target_id, body_markdown, author_id, author_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`),
		strings.TrimSpace(comment.ID),
		string(target.TargetType),
		target.TargetID,
		body,
		strings.TrimSpace(comment.AuthorID),
		authorName,
		ts(comment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListCommentsByTarget lists comments for one project or subproject, oldest first.
func (r *Repository) ListCommentsByTarget(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error) {
	target, err := domain.NormalizeCommentTarget(target)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, target_type, target_id, body_markdown, author_id, author_name, created_at
		FROM comments
		WHERE target_type = ? AND target_id = ?
		ORDER BY created_at ASC, id ASC
	`), string(target.TargetType), target.TargetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		var (
			comment    domain.Comment
			targetType string
			createdRaw string
		)
		if err := rows.Scan(&comment.ID, &targetType, &comment.TargetID, &comment.BodyMarkdown, &comment.AuthorID, &comment.AuthorName, &createdRaw); err != nil {
			return nil, err
		}
		comment.TargetType = domain.CommentTargetType(targetType)
		comment.CreatedAt = parseTS(createdRaw)
		out = append(out, comment)
	}
	return out, rows.Err()
}

// ListChangeEvents lists the newest change events first.
func (r *Repository) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, entity_type, entity_id, funnel_id, operation, actor_id, metadata_json, created_at
		FROM change_events
		ORDER BY id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			entityType  string
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &entityType, &event.EntityID, &event.FunnelID, &opRaw, &event.ActorID, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.EntityType = domain.EntityType(entityType)
		event.Operation = domain.ChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
