package genre

import "testing"

func TestNames_DropsUnknownIDs(t *testing.T) {
	got := Names([]int{28, 999, 878})
	if len(got) != 2 || got[0] != "Action" || got[1] != "Science Fiction" {
		t.Errorf("Names = %v, want [Action Science Fiction]", got)
	}
	if got := Names(nil); len(got) != 0 {
		t.Errorf("Names(nil) = %v, want empty", got)
	}
}

func TestQuickFilters_AreKnownGenres(t *testing.T) {
	for _, f := range QuickFilters() {
		name, ok := Name(f.ID)
		if !ok {
			t.Errorf("quick filter %d is not a known genre", f.ID)
			continue
		}
		if name != f.Name {
			t.Errorf("quick filter %d name = %q, table says %q", f.ID, f.Name, name)
		}
	}
}

func TestQuickFilters_ReturnsCopy(t *testing.T) {
	first := QuickFilters()
	first[0].Name = "changed"
	if QuickFilters()[0].Name == "changed" {
		t.Error("QuickFilters must not expose the shared table")
	}
}

func TestAll_SortedAndComplete(t *testing.T) {
	all := All()
	if len(all) != 19 {
		t.Fatalf("expected 19 genres, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("genres not sorted at %d: %d >= %d", i, all[i-1].ID, all[i].ID)
		}
	}
}
