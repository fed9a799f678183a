package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ephys-cam/pkg/config"
	"ephys-cam/pkg/devstate"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	return out.String(), err
}

func TestDetailsCommands(t *testing.T) {
	dir := t.TempDir()
	details := filepath.Join(dir, "camera_details.json")
	stateDir := filepath.Join(dir, "configs")
	common := []string{"--details", details, "--state-dir", stateDir, "--backend", "sim"}

	if _, err := run(t, append([]string{"details", "write"}, common...)...); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, append([]string{"details", "write"}, common...)...); err == nil {
		t.Fatal("second write should refuse to overwrite")
	}
	if _, err := run(t, append([]string{"details", "write", "--force"}, common...)...); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, append([]string{"details", "show"}, common...)...)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ephys_1_lateral", "ephys_1_top", "SIM 37BUX287 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output misses %q:\n%s", want, out)
		}
	}

	if _, err = run(t, append([]string{"details", "save-state"}, common...)...); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"ephys_1_lateral", "ephys_1_top"} {
		if _, err = devstate.Load(devstate.Path(stateDir, name)); err != nil {
			t.Error(err)
		}
	}
}

func TestRecordCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "video")
	details := filepath.Join(dir, "camera_details.json")
	crop := config.Crop{Height: 540, Width: 720}
	d := config.NewDetails([]string{"m1"},
		config.CameraConfig{Index: 0, Name: "top", Crop: crop, Exposure: 0.002, OutputDir: out},
	)
	if err := d.Save(details); err != nil {
		t.Fatal(err)
	}

	stdout, err := run(t, "record", "--subject", "m1", "--duration", "200ms",
		"--details", details, "--state-dir", filepath.Join(dir, "configs"), "--backend", "sim", "--fps", "30")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, `"subject": "m1"`) {
		t.Errorf("summary missing subject:\n%s", stdout)
	}
	entries, err := os.ReadDir(filepath.Join(out, "m1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d files, want video, timestamps and metadata", len(entries))
	}
}
