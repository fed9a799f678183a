package sdk

import (
	"errors"
	"slices"
	"testing"
)

func TestRegistry(t *testing.T) {
	errFactory := errors.New("factory")
	Register("test-backend", func() (Library, error) { return nil, errFactory })

	if !slices.Contains(Backends(), "test-backend") {
		t.Fatalf("backend not listed: %v", Backends())
	}
	if _, err := Get("test-backend"); !errors.Is(err, errFactory) {
		t.Errorf("Get err = %v", err)
	}
	if _, err := Get("missing"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBasicFilter(t *testing.T) {
	f := NewBasicFilter(FilterROI)
	if _, ok := f.Parameter(ParamTop); ok {
		t.Fatal("unset parameter reported as set")
	}
	if err := f.SetParameter(ParamTop, 12); err != nil {
		t.Fatal(err)
	}
	if v, ok := f.Parameter(ParamTop); !ok || v != 12 {
		t.Errorf("Top = %d, %v", v, ok)
	}
	if f.Name() != FilterROI {
		t.Errorf("name = %s", f.Name())
	}
}
