package clock

import (
	"testing"
	"time"
)

func TestOffsetWithoutServer(t *testing.T) {
	off, err := Offset("", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Fatalf("offset = %s", off)
	}
}

func TestOffsetUnreachable(t *testing.T) {
	if _, err := Offset("127.0.0.1:1", 100*time.Millisecond); err == nil {
		t.Fatal("expected error from unreachable server")
	}
}
