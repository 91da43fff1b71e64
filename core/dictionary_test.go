package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"
)

type dictJSON struct {
	Version      string                    `json:"version"`
	Config       map[string]string         `json:"config"`
	Commands     map[string]int            `json:"commands"`
	Responses    map[string]int            `json:"responses"`
	Enumerations map[string]map[string]int `json:"enumerations"`
}

func testDictionary() *Dictionary {
	reg := NewCommandRegistry()
	dict := NewDictionary(reg)
	dict.registerIdentify(reg)
	reg.Register("set_thing", "value=%u", func(*[]byte) error { return nil })
	dict.AddConstant("TEST_CONST", uint32(42))
	dict.AddConstant("TEST_STR", "hello")
	dict.AddEnumeration("status", StatusNames())
	return dict
}

func TestDictionaryJSON(t *testing.T) {
	var d dictJSON
	raw := testDictionary().Generate()
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, raw)
	}

	if d.Version != "hvboard-0.1.0" {
		t.Errorf("version = %q", d.Version)
	}
	if d.Config["TEST_CONST"] != "42" || d.Config["TEST_STR"] != "hello" {
		t.Errorf("config = %v", d.Config)
	}
	if d.Commands["identify offset=%u count=%c"] != 1 || d.Commands["set_thing value=%u"] != 2 {
		t.Errorf("commands = %v", d.Commands)
	}
	if d.Responses["identify_response offset=%u data=%*s"] != 0 {
		t.Errorf("responses = %v", d.Responses)
	}
	if d.Enumerations["status"]["verify_failed"] != int(StatusOf(ErrVerify)) {
		t.Errorf("status enumeration = %v", d.Enumerations["status"])
	}
}

func TestDictionaryCompressed(t *testing.T) {
	dict := testDictionary()
	plain := append([]byte(nil), dict.Generate()...)

	dict.BuildDictionary()
	r, err := zlib.NewReader(bytes.NewReader(dict.Generate()))
	if err != nil {
		t.Fatalf("not zlib: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("inflated dictionary differs from plain JSON")
	}

	dict.AddConstant("LATE", uint32(1))
	if bytes.HasPrefix(dict.Generate(), []byte{0x78}) {
		t.Error("cache not invalidated by AddConstant")
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := testDictionary()
	full := dict.Generate()

	if c := dict.GetChunk(0, 10); !bytes.Equal(c, full[:10]) {
		t.Errorf("first chunk = %q", c)
	}
	tail := uint32(len(full) - 3)
	if c := dict.GetChunk(tail, 10); len(c) != 3 {
		t.Errorf("tail chunk has %d bytes, want 3", len(c))
	}
	if c := dict.GetChunk(uint32(len(full)+100), 10); len(c) != 0 {
		t.Error("chunk beyond end not empty")
	}
}
