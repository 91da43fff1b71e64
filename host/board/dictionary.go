package board

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Dictionary is the parsed data dictionary a board serves through identify.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]uint16
	responseIDs map[string]uint16
}

// ParseDictionary decodes raw identify data, inflating it first when it
// is zlib compressed.
func ParseDictionary(raw []byte) (*Dictionary, error) {
	data := raw
	if len(raw) >= 2 && raw[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("inflate dictionary: %w", err)
		}
		defer r.Close()
		if data, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("inflate dictionary: %w", err)
		}
	}

	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	d.commandIDs = indexByName(d.Commands)
	d.responseIDs = indexByName(d.Responses)
	return d, nil
}

// indexByName keys a "name arg=%x ..." map by the bare message name.
func indexByName(m map[string]int) map[string]uint16 {
	idx := make(map[string]uint16, len(m))
	for format, id := range m {
		name := format
		if i := strings.IndexByte(format, ' '); i >= 0 {
			name = format[:i]
		}
		idx[name] = uint16(id)
	}
	return idx
}

// CommandID looks up a host to board message.
func (d *Dictionary) CommandID(name string) (uint16, error) {
	id, ok := d.commandIDs[name]
	if !ok {
		return 0, fmt.Errorf("board has no command %q", name)
	}
	return id, nil
}

// ResponseID looks up a board to host message.
func (d *Dictionary) ResponseID(name string) (uint16, error) {
	id, ok := d.responseIDs[name]
	if !ok {
		return 0, fmt.Errorf("board has no response %q", name)
	}
	return id, nil
}

// EnumName returns the name of value in enumeration enum.
func (d *Dictionary) EnumName(enum string, value int) (string, bool) {
	for name, v := range d.Enumerations[enum] {
		if v == value {
			return name, true
		}
	}
	return "", false
}

// Summary renders the dictionary for a terminal.
func (d *Dictionary) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version %s\n", d.Version)

	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %s\n", k, d.Config[k])
	}

	list := func(title string, m map[string]int) {
		fmt.Fprintf(&b, "%s (%d):\n", title, len(m))
		formats := make([]string, 0, len(m))
		for f := range m {
			formats = append(formats, f)
		}
		sort.Slice(formats, func(i, j int) bool { return m[formats[i]] < m[formats[j]] })
		for _, f := range formats {
			fmt.Fprintf(&b, "  [%d] %s\n", m[f], f)
		}
	}
	list("commands", d.Commands)
	list("responses", d.Responses)
	return b.String()
}
