package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if c != Default() {
		t.Errorf("Load = %+v, want defaults", c)
	}
}

func TestLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	doc := "device: tcp://127.0.0.1:9000\ntimeout: 500ms\nsim:\n  variant: hv507\n  expanders: 4\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HVBOARD_ADDR", ":9090")
	t.Setenv("HVBOARD_SIM__EXPANDERS", "6")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Device != "tcp://127.0.0.1:9000" || c.Timeout != 500*time.Millisecond {
		t.Errorf("file values not applied: %+v", c)
	}
	if c.Sim.Variant != "hv507" || c.Sim.Expanders != 6 || c.Addr != ":9090" {
		t.Errorf("env did not win: %+v", c)
	}
	if c.Baud != Default().Baud {
		t.Errorf("default baud lost: %d", c.Baud)
	}
}

func TestWriteLoadsBack(t *testing.T) {
	want := Default()
	want.Sim.Store = "/tmp/board.yml"

	var buf bytes.Buffer
	if err := Write(&buf, want); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Load(Write(c)) = %+v, want %+v", got, want)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	os.WriteFile(path, []byte("device: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("malformed file accepted")
	}
}
