package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInvalidScope        = errors.New("invalid funnel scope")
	ErrInvalidParent       = errors.New("invalid parent")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrStageFunnelMismatch = errors.New("stage does not belong to funnel")
	ErrInvalidBodyMarkdown = errors.New("invalid body markdown")
	ErrInvalidTargetType   = errors.New("invalid comment target type")
)
