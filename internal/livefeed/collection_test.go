package livefeed

import "testing"

type rec struct {
	ID string
	TS int64
}

func (r rec) RecordID() string { return r.ID }

func TestMergeIdempotent(t *testing.T) {
	c := NewCollection[rec]()

	if !c.Merge(rec{ID: "1", TS: 10}) {
		t.Error("first Merge should add")
	}
	if c.Merge(rec{ID: "1", TS: 99}) {
		t.Error("second Merge with same id should no-op")
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	got, _ := c.Get("1")
	if got.TS != 10 {
		t.Errorf("Merge overwrote existing record: TS = %d", got.TS)
	}
}

func TestMergeIdempotentAcrossReplace(t *testing.T) {
	c := NewCollection[rec]()
	c.Merge(rec{ID: "1"})
	c.Replace([]rec{{ID: "1"}, {ID: "2"}})
	if c.Merge(rec{ID: "2"}) {
		t.Error("Merge after Replace should still dedup by id")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestReplacePreservesOrderAndMergeAppends(t *testing.T) {
	c := NewCollection[rec]()
	c.Replace([]rec{{ID: "1", TS: 10}, {ID: "2", TS: 20}})

	// Duplicate delivery of id 2, then a genuinely new record.
	c.Merge(rec{ID: "2", TS: 20})
	c.Merge(rec{ID: "3", TS: 30})

	snap := c.Snapshot()
	want := []string{"1", "2", "3"}
	if len(snap) != len(want) {
		t.Fatalf("len = %d, want %d", len(snap), len(want))
	}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("snapshot[%d] = %s, want %s", i, snap[i].ID, id)
		}
	}
}

func TestReplaceDiscardsPriorContents(t *testing.T) {
	c := NewCollection[rec]()
	c.Replace([]rec{{ID: "old"}})
	c.Replace([]rec{{ID: "new1"}, {ID: "new2"}})

	if _, ok := c.Get("old"); ok {
		t.Error("old record survived Replace")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestUpdateInPlace(t *testing.T) {
	c := NewCollection[rec]()
	c.Replace([]rec{{ID: "1", TS: 10}, {ID: "2", TS: 20}})

	if !c.Update("1", func(r *rec) { r.TS = 11 }) {
		t.Fatal("Update should find id 1")
	}
	if c.Update("nope", func(r *rec) {}) {
		t.Error("Update of unknown id should report false")
	}

	snap := c.Snapshot()
	if snap[0].ID != "1" || snap[0].TS != 11 {
		t.Errorf("snapshot[0] = %+v, want id 1 updated in place", snap[0])
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewCollection[rec]()
	c.Replace([]rec{{ID: "1"}})
	snap := c.Snapshot()
	snap[0].ID = "mutated"
	got, _ := c.Get("1")
	if got.ID != "1" {
		t.Error("mutating a snapshot leaked into the collection")
	}
}
