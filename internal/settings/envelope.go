package settings

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Envelope is the versioned whole-system export document
type Envelope struct {
	Version    string             `json:"version" yaml:"version"`
	ExportedAt time.Time          `json:"exportedAt" yaml:"exportedAt"`
	Modules    map[string][]Entry `json:"modules" yaml:"modules"`
}

// Format selects the envelope encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts a format name or a file name with a known extension
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(extOf(name), ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported envelope format %q", name)
	}
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return name
}

// Encode writes the envelope in the given format
func (e *Envelope) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(e); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported envelope format %q", format)
	}
}

// DecodeEnvelope reads and sanity-checks an envelope
func DecodeEnvelope(r io.Reader, format Format) (*Envelope, error) {
	var env Envelope
	switch format {
	case FormatJSON, "":
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
	default:
		return nil, fmt.Errorf("unsupported envelope format %q", format)
	}

	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) validate() error {
	if e == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidEnvelope)
	}
	if _, err := semver.NewVersion(e.Version); err != nil {
		return fmt.Errorf("%w: bad version %q: %v", ErrInvalidEnvelope, e.Version, err)
	}
	if e.Modules == nil {
		return fmt.Errorf("%w: no modules section", ErrInvalidEnvelope)
	}
	return nil
}

// ModuleIDs returns the module ids in the envelope, sorted
func (e *Envelope) ModuleIDs() []string {
	ids := make([]string, 0, len(e.Modules))
	for id := range e.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone deep-copies the module sections
func (e *Envelope) Clone() *Envelope {
	out := &Envelope{Version: e.Version, ExportedAt: e.ExportedAt, Modules: make(map[string][]Entry, len(e.Modules))}
	for id, entries := range e.Modules {
		out.Modules[id] = append([]Entry(nil), entries...)
	}
	return out
}

// Lookup finds the entry for module.key
func (e *Envelope) Lookup(module, key string) (Entry, bool) {
	for _, entry := range e.Modules[module] {
		if entry.Key == key {
			return entry, true
		}
	}
	return Entry{}, false
}

// Put replaces or appends an entry
func (e *Envelope) Put(module string, entry Entry) {
	entries := e.Modules[module]
	for i := range entries {
		if entries[i].Key == entry.Key {
			entries[i] = entry
			return
		}
	}
	e.Modules[module] = append(entries, entry)
}

// Remove deletes module.key, reporting whether it was present
func (e *Envelope) Remove(module, key string) bool {
	entries := e.Modules[module]
	for i := range entries {
		if entries[i].Key == key {
			e.Modules[module] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// Rename changes a key inside a module section, keeping value and type
func (e *Envelope) Rename(module, from, to string) bool {
	return e.Move(module, from, module, to)
}

// Move relocates an entry, possibly into another module section
func (e *Envelope) Move(fromModule, fromKey, toModule, toKey string) bool {
	entry, ok := e.Lookup(fromModule, fromKey)
	if !ok {
		return false
	}
	e.Remove(fromModule, fromKey)
	entry.Key = toKey
	e.Put(toModule, entry)
	return true
}
