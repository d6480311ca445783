package domain

import (
	"cmp"
	"slices"
	"strings"
)

// Direction selects the neighbor a stage swaps with.
type Direction string

// Direction values.
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection normalizes a raw direction value.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionUp, "left":
		return DirectionUp, nil
	case DirectionDown, "right":
		return DirectionDown, nil
	default:
		return "", ErrInvalidDirection
	}
}

// MoveAdjacent swaps stageID with its neighbor in direction and re-sequences every order.
// Unknown ids return stages unchanged. A boundary move keeps the id sequence and only
// repairs orders, so dense input comes back identical.
func MoveAdjacent(stages []Stage, stageID string, direction Direction) []Stage {
	idx := stageIndex(stages, stageID)
	if idx < 0 {
		return stages
	}
	var neighbor int
	switch direction {
	case DirectionUp:
		neighbor = idx - 1
	case DirectionDown:
		neighbor = idx + 1
	default:
		return stages
	}

	out := slices.Clone(stages)
	if neighbor >= 0 && neighbor < len(out) {
		out[idx], out[neighbor] = out[neighbor], out[idx]
	}
	return renumber(out)
}

// MoveToPosition re-inserts draggedID immediately before targetID and re-sequences every order.
// Absent ids return stages unchanged; dropping a stage on itself only repairs orders.
func MoveToPosition(stages []Stage, draggedID, targetID string) []Stage {
	from := stageIndex(stages, draggedID)
	if from < 0 || stageIndex(stages, targetID) < 0 {
		return stages
	}
	if draggedID == targetID {
		return renumber(slices.Clone(stages))
	}

	dragged := stages[from]
	out := make([]Stage, 0, len(stages))
	out = append(out, stages[:from]...)
	out = append(out, stages[from+1:]...)
	to := stageIndex(out, targetID)
	out = slices.Insert(out, to, dragged)
	return renumber(out)
}

// Resequence sorts stages by order (stable) and assigns dense 1-based orders.
func Resequence(stages []Stage) []Stage {
	out := slices.Clone(stages)
	slices.SortStableFunc(out, func(a, b Stage) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return renumber(out)
}

// NextStageOrder returns the order for a stage appended to stages.
func NextStageOrder(stages []Stage) int {
	highest := 0
	for _, stage := range stages {
		highest = max(highest, stage.Order)
	}
	return highest + 1
}

// ChangedOrders returns the stages in next whose order differs from prev.
func ChangedOrders(prev, next []Stage) []Stage {
	before := make(map[string]int, len(prev))
	for _, stage := range prev {
		before[stage.ID] = stage.Order
	}
	out := make([]Stage, 0)
	for _, stage := range next {
		if order, ok := before[stage.ID]; !ok || order != stage.Order {
			out = append(out, stage)
		}
	}
	return out
}

func stageIndex(stages []Stage, id string) int {
	return slices.IndexFunc(stages, func(s Stage) bool { return s.ID == id })
}

func renumber(stages []Stage) []Stage {
	for idx := range stages {
		stages[idx].Order = idx + 1
	}
	return stages
}
