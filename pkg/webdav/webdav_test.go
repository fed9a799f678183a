package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHandlerServesMounts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip.avi"), []byte("RIFF"), 0666); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(Handler(map[string]string{"ephys_1_top": dir}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ephys_1_top/clip.avi")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "RIFF" {
		t.Fatalf("body = %q", body)
	}

	resp2, err := http.Get(srv.URL + "/other/clip.avi")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("unmounted status = %d", resp2.StatusCode)
	}
}

func TestStartStop(t *testing.T) {
	w := New(context.Background(), 0, map[string]string{"a": t.TempDir()})
	if w.Running() {
		t.Fatal("should not run before Start")
	}
	w.Start()
	w.Start()
	if !w.Running() {
		t.Fatal("should run after Start")
	}
	w.Stop()
	if w.Running() {
		t.Fatal("should stop")
	}
}
