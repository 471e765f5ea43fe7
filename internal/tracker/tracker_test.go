package tracker

import (
	"image"
	"testing"
	"time"
)

func box(cx, cy int) image.Rectangle {
	return image.Rect(cx-50, cy-50, cx+50, cy+50)
}

func TestAssign_StableUnderThreshold(t *testing.T) {
	tr := New(0)
	now := time.Now()
	first := tr.Assign([]image.Rectangle{box(200, 200)}, now)
	second := tr.Assign([]image.Rectangle{box(260, 250)}, now.Add(time.Second))
	if first[0] != second[0] {
		t.Fatalf("expected stable id, got %q then %q", first[0], second[0])
	}
	if got := tr.Tracks()[0].Centroid; got != (Point{260, 250}) {
		t.Fatalf("centroid not updated: %+v", got)
	}
}

func TestAssign_NewIDBeyondThreshold(t *testing.T) {
	tr := New(0)
	first := tr.Assign([]image.Rectangle{box(100, 100)}, time.Now())
	second := tr.Assign([]image.Rectangle{box(300, 100)}, time.Now())
	if first[0] == second[0] {
		t.Fatalf("expected new id after large move, got %q twice", first[0])
	}
	if first[0] != "face_0" || second[0] != "face_1" {
		t.Fatalf("ids should increase monotonically: %q %q", first[0], second[0])
	}
}

func TestAssign_GreedyClaimsEachTrackOnce(t *testing.T) {
	tr := New(0)
	ids := tr.Assign([]image.Rectangle{box(100, 100), box(400, 100)}, time.Now())
	// both new faces are near the first track; only one may claim it
	next := tr.Assign([]image.Rectangle{box(110, 100), box(120, 100)}, time.Now())
	if next[0] != ids[0] {
		t.Fatalf("first detection should keep %q, got %q", ids[0], next[0])
	}
	if next[1] == ids[0] || next[1] == ids[1] {
		t.Fatalf("second detection must get a fresh id, got %q", next[1])
	}
}

func TestAssign_TableReplacedEachFrame(t *testing.T) {
	tr := New(0)
	tr.Assign([]image.Rectangle{box(100, 100), box(500, 100)}, time.Now())
	tr.Assign([]image.Rectangle{box(100, 100)}, time.Now())
	if tr.Len() != 1 {
		t.Fatalf("expected table to hold only current faces, got %d", tr.Len())
	}
	tr.Assign(nil, time.Now())
	if tr.Len() != 0 {
		t.Fatalf("expected empty table, got %d", tr.Len())
	}
	// identity counter keeps increasing after the table empties
	ids := tr.Assign([]image.Rectangle{box(100, 100)}, time.Now())
	if ids[0] != "face_2" {
		t.Fatalf("expected face_2, got %q", ids[0])
	}
}

func TestCentroid(t *testing.T) {
	if got := Centroid(image.Rect(10, 20, 31, 41)); got != (Point{20, 30}) {
		t.Fatalf("got %+v", got)
	}
}
