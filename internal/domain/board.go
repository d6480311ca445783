package domain

// StageBucket is one kanban column.
type StageBucket[E any] struct {
	Stage    Stage
	Entities []E
}

// Board is a funnel grouped into stage columns plus the unassigned bucket.
type Board[E any] struct {
	Funnel     Funnel
	Columns    []StageBucket[E]
	Unassigned []E
}

// BuildBoard groups entities onto funnel's columns.
func BuildBoard[E Placeable[E]](entities []E, funnel Funnel) Board[E] {
	return Board[E]{
		Funnel:     funnel,
		Columns:    GroupByStage(entities, funnel),
		Unassigned: ComputeUnassigned(entities, funnel),
	}
}

// GroupByStage returns one bucket per funnel stage, in stage order. Entities from other
// funnels and entities without a valid stage are left out.
func GroupByStage[E Placeable[E]](entities []E, funnel Funnel) []StageBucket[E] {
	buckets := make([]StageBucket[E], 0, len(funnel.Stages))
	index := make(map[string]int, len(funnel.Stages))
	for _, stage := range funnel.Stages {
		index[stage.ID] = len(buckets)
		buckets = append(buckets, StageBucket[E]{Stage: stage, Entities: []E{}})
	}
	for _, entity := range entities {
		placement := entity.Placement()
		if placement.FunnelID != funnel.ID {
			continue
		}
		idx, ok := index[placement.StageID]
		if !ok {
			continue
		}
		buckets[idx].Entities = append(buckets[idx].Entities, entity)
	}
	return buckets
}

// ComputeUnassigned returns entities in funnel whose stage is empty or unknown to it.
func ComputeUnassigned[E Placeable[E]](entities []E, funnel Funnel) []E {
	out := make([]E, 0)
	for _, entity := range entities {
		placement := entity.Placement()
		if placement.FunnelID != funnel.ID {
			continue
		}
		if placement.StageID == "" || !funnel.HasStage(placement.StageID) {
			out = append(out, entity)
		}
	}
	return out
}

// AssignToStage places entity on stage, setting funnel and stage together.
func AssignToStage[E Placeable[E]](entity E, stage Stage) E {
	return entity.WithPlacement(Placement{FunnelID: stage.FunnelID, StageID: stage.ID})
}

// ChangeFunnel moves entity to funnelID and clears its stage.
func ChangeFunnel[E Placeable[E]](entity E, funnelID string) E {
	return entity.WithPlacement(Placement{FunnelID: funnelID}.Normalize())
}

// Unassign removes entity from any funnel.
func Unassign[E Placeable[E]](entity E) E {
	return entity.WithPlacement(Placement{})
}

// IsNoopDrop reports whether dropping entity on stage changes nothing.
func IsNoopDrop[E Placeable[E]](entity E, stage Stage) bool {
	placement := entity.Placement()
	return placement.FunnelID == stage.FunnelID && placement.StageID == stage.ID
}

// FindEntity returns the entity with id.
func FindEntity[E Placeable[E]](entities []E, id string) (E, int, bool) {
	for idx, entity := range entities {
		if entity.EntityID() == id {
			return entity, idx, true
		}
	}
	var zero E
	return zero, -1, false
}
