package handler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadProcFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	data := "MemTotal:       16384 kB\nMemFree:         2048 kB\nMemAvailable:    8192 kB\nBuffers:          512 kB\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := readProcFields(path, "MemTotal:", "MemAvailable:")
	if err != nil {
		t.Fatalf("readProcFields: %v", err)
	}
	if got["MemTotal:"] != 16384*1024 || got["MemAvailable:"] != 8192*1024 {
		t.Fatalf("got %v", got)
	}
	if _, ok := got["MemFree:"]; ok {
		t.Fatalf("unrequested field returned")
	}
}
