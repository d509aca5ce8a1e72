package registry

import (
	"strings"
	"testing"
	"time"
)

type rec struct {
	name     string
	finished *time.Time
}

func finishedAt(v *rec) (time.Time, bool) {
	if v.finished == nil {
		return time.Time{}, false
	}
	return *v.finished, true
}

func TestNewID(t *testing.T) {
	a, b := NewID("battle"), NewID("battle")
	if !strings.HasPrefix(a, "battle_") || a == b {
		t.Fatalf("ids = %q %q", a, b)
	}
}

func TestPutGetListDelete(t *testing.T) {
	r := New[*rec]()
	now := time.Unix(0, 0)
	r.now = func() time.Time { now = now.Add(time.Second); return now }

	r.Put("a", &rec{name: "a"})
	r.Put("b", &rec{name: "b"})
	r.Put("a", &rec{name: "a2"})

	got, ok := r.Get("a")
	if !ok || got.name != "a2" {
		t.Fatalf("Get(a) = %v, %v", got, ok)
	}
	list := r.List()
	if len(list) != 2 || list[0].name != "a2" || list[1].name != "b" {
		t.Fatalf("List order wrong: %v %v", list[0], list[1])
	}
	r.Delete("a")
	if _, ok := r.Get("a"); ok || r.Len() != 1 {
		t.Fatalf("Delete did not remove")
	}
}

func TestEvictOnlyFinishedAndOld(t *testing.T) {
	r := New[*rec]()
	start := time.Unix(0, 0)
	now := start
	r.now = func() time.Time { return now }

	early := start.Add(time.Minute)
	r.Put("old-done", &rec{finished: &early})
	r.Put("old-running", &rec{})
	now = now.Add(time.Hour)
	recent := now
	r.Put("new-done", &rec{finished: &recent})
	now = now.Add(time.Minute)

	evicted := r.Evict(30*time.Minute, finishedAt)
	if len(evicted) != 1 || evicted[0] != "old-done" {
		t.Fatalf("evicted = %v", evicted)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestEvictMeasuresRetentionFromFinish(t *testing.T) {
	r := New[*rec]()
	start := time.Unix(0, 0)
	now := start
	r.now = func() time.Time { return now }

	long := &rec{name: "long"}
	r.Put("battle_long", long)

	// runs for two hours, then finishes
	now = start.Add(2 * time.Hour)
	ended := now
	long.finished = &ended

	if evicted := r.Evict(time.Hour, finishedAt); len(evicted) != 0 {
		t.Fatalf("evicted %v right after finishing", evicted)
	}
	now = ended.Add(59 * time.Minute)
	if evicted := r.Evict(time.Hour, finishedAt); len(evicted) != 0 {
		t.Fatalf("evicted %v before retention elapsed", evicted)
	}
	now = ended.Add(time.Hour)
	if evicted := r.Evict(time.Hour, finishedAt); len(evicted) != 1 || evicted[0] != "battle_long" {
		t.Fatalf("evicted = %v, want [battle_long]", evicted)
	}
}
