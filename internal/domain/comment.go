package domain

import (
	"slices"
	"strings"
	"time"
)

// CommentTargetType identifies the entity type a comment belongs to.
type CommentTargetType string

// Comment target type values.
const (
	CommentTargetProject    CommentTargetType = "project"
	CommentTargetSubProject CommentTargetType = "subproject"
)

// validCommentTargetTypes stores supported target-type values.
var validCommentTargetTypes = []CommentTargetType{
	CommentTargetProject,
	CommentTargetSubProject,
}

// CommentTarget identifies the project or subproject a thread hangs off.
type CommentTarget struct {
	TargetType CommentTargetType
	TargetID   string
}

// Comment stores one markdown note in an entity's thread.
type Comment struct {
	ID           string
	TargetType   CommentTargetType
	TargetID     string
	BodyMarkdown string
	AuthorID     string
	AuthorName   string
	CreatedAt    time.Time
}

// CommentInput holds input values for comment creation operations.
type CommentInput struct {
	ID           string
	Target       CommentTarget
	BodyMarkdown string
	AuthorID     string
	AuthorName   string
}

// NewComment constructs a normalized comment.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Comment{}, ErrInvalidID
	}
	target, err := NormalizeCommentTarget(in.Target)
	if err != nil {
		return Comment{}, err
	}
	body := strings.TrimSpace(in.BodyMarkdown)
	if body == "" {
		return Comment{}, ErrInvalidBodyMarkdown
	}
	authorName := strings.TrimSpace(in.AuthorName)
	if authorName == "" {
		authorName = "pipedesk-user"
	}

	return Comment{
		ID:           in.ID,
		TargetType:   target.TargetType,
		TargetID:     target.TargetID,
		BodyMarkdown: body,
		AuthorID:     strings.TrimSpace(in.AuthorID),
		AuthorName:   authorName,
		CreatedAt:    now.UTC(),
	}, nil
}

// NormalizeCommentTarget validates and canonicalizes comment target identifiers.
func NormalizeCommentTarget(target CommentTarget) (CommentTarget, error) {
	target.TargetID = strings.TrimSpace(target.TargetID)
	target.TargetType = CommentTargetType(strings.TrimSpace(strings.ToLower(string(target.TargetType))))
	if target.TargetID == "" {
		return CommentTarget{}, ErrInvalidID
	}
	if !slices.Contains(validCommentTargetTypes, target.TargetType) {
		return CommentTarget{}, ErrInvalidTargetType
	}
	return target, nil
}
