package progress

// Aggregate converts a subject snapshot into counts under the given display
// mode. Checkbox mode: green = checked items, red = the remainder up to total.
// RAG mode: explicit statuses are counted and every untouched or unset item is
// folded into red, so green+amber+red always equals total.
func Aggregate(state SubjectState, mode Mode) Counts {
	total := state.Total
	if total == 0 {
		total = len(state.Items)
	}
	counts := Counts{Total: total}
	for _, entry := range state.Items {
		if mode == ModeCheckbox {
			if entry.Checkbox {
				counts.Green++
			}
			continue
		}
		switch entry.Rag {
		case RagGreen:
			counts.Green++
		case RagAmber:
			counts.Amber++
		case RagRed:
			counts.Red++
		}
	}
	if mode == ModeCheckbox {
		counts.Red = max(total-counts.Green, 0)
		return counts
	}
	counts.Red += max(total-counts.Green-counts.Amber-counts.Red, 0)
	return counts
}

// SnapshotResolver resolves the last known snapshot for a subject, local
// store first, falling back to the most recent remote snapshot. The second
// return value reports whether any snapshot was resolvable.
type SnapshotResolver func(subjectID string) (SubjectState, bool)

// AggregateAll sums Aggregate over every subject with a resolvable snapshot.
// Subjects with no snapshot are skipped outright: they contribute nothing to
// the cross-subject total rather than a zero-filled row.
func AggregateAll(subjectIDs []string, mode Mode, resolve SnapshotResolver) Counts {
	var counts Counts
	for _, subjectID := range subjectIDs {
		state, ok := resolve(subjectID)
		if !ok {
			continue
		}
		counts = counts.Add(Aggregate(state, mode))
	}
	return counts
}
