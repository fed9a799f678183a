package devstate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoad(t *testing.T) {
	path := Path(filepath.Join(t.TempDir(), "configs"), "ephys_1_top")
	if filepath.Base(path) != "ephys_1_top_config.xml" {
		t.Fatalf("unexpected path %s", path)
	}

	s := &State{Device: "DMK 37BUX287", FrameRate: 120}
	s.SetAbsolute("Exposure", "Value", 0.002)
	s.SetValue("Strobe", "Mode", 2)
	s.SetSwitch("Trigger", "Enable", true)
	s.SetAbsolute("Exposure", "Value", 0.004)
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Device != s.Device || got.FrameRate != 120 || len(got.Properties) != 3 {
		t.Fatalf("unexpected state: %+v", got)
	}
	p, ok := got.Lookup("Exposure", "Value")
	if !ok {
		t.Fatal("exposure missing")
	}
	if v, err := p.Float(); err != nil || v != 0.004 {
		t.Errorf("exposure = %v, %v", v, err)
	}
	p, _ = got.Lookup("Trigger", "Enable")
	if on, err := p.Bool(); err != nil || !on {
		t.Errorf("trigger = %v, %v", on, err)
	}
	p, _ = got.Lookup("Strobe", "Mode")
	if m, err := p.Int(); err != nil || m != 2 {
		t.Errorf("strobe mode = %v, %v", m, err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xml"))
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want not exist", err)
	}
}
