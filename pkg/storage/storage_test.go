package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecordingLayout(t *testing.T) {
	out := t.TempDir()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)
	r, err := NewRecording(out, "mouse 01", "ephys_1_lateral", at)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(out, "mouse_01", "mouse_01_ephys_1_lateral_20260304_050607.avi")
	if r.VideoPath() != want {
		t.Fatalf("video path = %s, want %s", r.VideoPath(), want)
	}
	if !strings.HasSuffix(r.TimestampsPath(), "_20260304_050607_timestamps.json") {
		t.Fatalf("timestamps path = %s", r.TimestampsPath())
	}
	if _, err = os.Stat(r.Dir()); err != nil {
		t.Fatal(err)
	}
}

func TestRecordingSameSecond(t *testing.T) {
	out := t.TempDir()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)
	first, err := NewRecording(out, "m1", "top", at)
	if err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(first.VideoPath(), []byte("avi"), 0o666); err != nil {
		t.Fatal(err)
	}
	second, err := NewRecording(out, "m1", "top", at.Add(300*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if second.VideoPath() == first.VideoPath() {
		t.Fatalf("second recording reuses %s", first.VideoPath())
	}
	if want := filepath.Join(out, "m1", "m1_top_20260304_050607_1.avi"); second.VideoPath() != want {
		t.Errorf("video path = %s, want %s", second.VideoPath(), want)
	}
	if err = second.SaveMetadata(map[string]int{"frames": 1}); err != nil {
		t.Fatal(err)
	}
	third, err := NewRecording(out, "m1", "top", at)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(third.VideoPath(), "_050607_2.avi") {
		t.Errorf("third video path = %s", third.VideoPath())
	}
	data, err := os.ReadFile(first.VideoPath())
	if err != nil || string(data) != "avi" {
		t.Errorf("first video changed: %q %v", data, err)
	}
}

func TestRecordingRejectsEmpty(t *testing.T) {
	if _, err := NewRecording("", "s", "c", time.Now()); err == nil {
		t.Fatal("expected error for empty output dir")
	}
	if _, err := NewRecording(t.TempDir(), "", "c", time.Now()); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestSaveAndList(t *testing.T) {
	out := t.TempDir()
	r, err := NewRecording(out, "s1", "cam", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	type payload struct {
		Times []float64 `json:"times"`
	}
	if err = r.SaveTimestamps(payload{Times: []float64{1.5, 2.5}}); err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(r.VideoPath(), make([]byte, 2048), 0666); err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(filepath.Join(r.Dir(), "notes.txt"), []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}

	var got payload
	if err = Load(r.TimestampsPath(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Times) != 2 || got.Times[1] != 2.5 {
		t.Fatalf("loaded %v", got)
	}

	files, err := List(out, out, filepath.Join(out, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(files), files)
	}
	for _, f := range files {
		if strings.HasSuffix(f.Name, ".avi") && (f.Bytes != 2048 || f.Size != "2.0 kB") {
			t.Fatalf("unexpected video entry %+v", f)
		}
	}
}
