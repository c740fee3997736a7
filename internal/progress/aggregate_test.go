package progress

import "testing"

func TestAggregateCheckboxMode(t *testing.T) {
	state := SubjectState{
		Mode:  ModeCheckbox,
		Total: 10,
		Items: map[string]ItemEntry{
			"bio-cells-1": {Checkbox: true},
			"bio-cells-2": {Checkbox: true},
			"bio-cells-3": {Checkbox: false},
			"bio-cells-4": {Rag: RagGreen}, // rag data does not count in checkbox mode
		},
	}
	counts := Aggregate(state, ModeCheckbox)
	if counts.Green != 2 {
		t.Fatalf("expected 2 green, got %d", counts.Green)
	}
	if counts.Amber != 0 {
		t.Fatalf("checkbox mode must not produce amber, got %d", counts.Amber)
	}
	if counts.Red != 8 {
		t.Fatalf("expected 8 red, got %d", counts.Red)
	}
	if counts.Green+counts.Red != counts.Total {
		t.Fatalf("green+red must equal total, got %d+%d != %d", counts.Green, counts.Red, counts.Total)
	}
}

func TestAggregateRagMode(t *testing.T) {
	state := SubjectState{
		Mode:  ModeRag,
		Total: 10,
		Items: map[string]ItemEntry{
			"chem-acids-1": {Rag: RagGreen},
			"chem-acids-2": {Rag: RagGreen},
			"chem-acids-3": {Rag: RagAmber},
			"chem-acids-4": {Rag: RagRed},
			"chem-acids-5": {Checkbox: true}, // unset rag folds into red
		},
	}
	counts := Aggregate(state, ModeRag)
	if counts.Green != 2 || counts.Amber != 1 {
		t.Fatalf("expected 2 green 1 amber, got %d green %d amber", counts.Green, counts.Amber)
	}
	// 1 explicit red plus 6 untouched items.
	if counts.Red != 7 {
		t.Fatalf("expected 7 red, got %d", counts.Red)
	}
	if counts.Green+counts.Amber+counts.Red != counts.Total {
		t.Fatalf("rag counts must sum to total")
	}
}

func TestAggregateNoData(t *testing.T) {
	counts := Aggregate(SubjectState{}, ModeCheckbox)
	if counts != (Counts{}) {
		t.Fatalf("empty state must aggregate to all-zero counts, got %+v", counts)
	}
}

func TestAggregateUntouchedChecklist(t *testing.T) {
	state := SubjectState{Mode: ModeCheckbox, Total: 10, Items: map[string]ItemEntry{}}

	checkbox := Aggregate(state, ModeCheckbox)
	if checkbox.Green != 0 || checkbox.Red != 10 || checkbox.Total != 10 {
		t.Fatalf("unexpected checkbox counts: %+v", checkbox)
	}
	rag := Aggregate(state, ModeRag)
	if rag.Green != 0 || rag.Amber != 0 || rag.Red != 10 {
		t.Fatalf("unexpected rag counts: %+v", rag)
	}
}

func TestAggregateTotalFallsBackToItemCount(t *testing.T) {
	state := SubjectState{
		Items: map[string]ItemEntry{
			"phys-waves-1": {Checkbox: true},
			"phys-waves-2": {},
		},
	}
	counts := Aggregate(state, ModeCheckbox)
	if counts.Total != 2 || counts.Green != 1 || counts.Red != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestAggregateGreenOverflowClampsRed(t *testing.T) {
	// A stale total smaller than the checked item count must not go negative.
	state := SubjectState{
		Total: 1,
		Items: map[string]ItemEntry{
			"bio-cells-1": {Checkbox: true},
			"bio-cells-2": {Checkbox: true},
		},
	}
	counts := Aggregate(state, ModeCheckbox)
	if counts.Red != 0 {
		t.Fatalf("red must clamp at zero, got %d", counts.Red)
	}
}

func TestAggregateAll(t *testing.T) {
	states := map[string]SubjectState{
		"biology": {Total: 4, Items: map[string]ItemEntry{
			"bio-cells-1": {Checkbox: true},
		}},
		"chemistry": {Total: 3, Items: map[string]ItemEntry{
			"chem-acids-1": {Checkbox: true},
			"chem-acids-2": {Checkbox: true},
		}},
	}
	resolve := func(subjectID string) (SubjectState, bool) {
		state, ok := states[subjectID]
		return state, ok
	}

	counts := AggregateAll([]string{"biology", "chemistry", "physics"}, ModeCheckbox, resolve)
	if counts.Total != 7 {
		t.Fatalf("physics has no snapshot and must contribute nothing, got total %d", counts.Total)
	}
	if counts.Green != 3 || counts.Red != 4 {
		t.Fatalf("unexpected combined counts: %+v", counts)
	}

	only := AggregateAll([]string{"biology"}, ModeCheckbox, resolve)
	if only != Aggregate(states["biology"], ModeCheckbox) {
		t.Fatalf("single-subject rollup must equal the subject aggregate")
	}
}
