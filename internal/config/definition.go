package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a job definition file syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// extensions lists the file suffixes tried by LoadDefinition, in order.
var extensions = []struct {
	ext    string
	format Format
}{
	{".json", FormatJSON},
	{".toml", FormatTOML},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
}

// ErrDefinitionNotFound is returned when no file exists for a job name.
var ErrDefinitionNotFound = errors.New("job definition not found")

// Definition describes one job: what to select, where to post and when.
type Definition struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
	Count    int    `json:"count,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Selector Spec   `json:"selector"`
	Poster   Spec   `json:"poster"`
}

// IsEnabled reports whether the job should be scheduled. Jobs are enabled
// unless they say otherwise.
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// PostCount is the number of posts to attempt per cycle.
func (d Definition) PostCount() int {
	if d.Count <= 0 {
		return 1
	}
	return d.Count
}

// Validate checks the fields every definition needs. The selector and poster
// bodies are checked by their constructors.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if d.Count < 0 {
		return fmt.Errorf("job %s: count must not be negative", d.Name)
	}
	if d.Selector == nil {
		return fmt.Errorf("job %s: %w: selector", d.Name, ErrMissingField)
	}
	if _, err := d.Selector.Type(); err != nil {
		return fmt.Errorf("job %s: selector: %w", d.Name, err)
	}
	if d.Poster == nil {
		return fmt.Errorf("job %s: %w: poster", d.Name, ErrMissingField)
	}
	if _, err := d.Poster.Type(); err != nil {
		return fmt.Errorf("job %s: poster: %w", d.Name, err)
	}
	return nil
}

// Marshal encodes the definition in the canonical form kept by the job store.
func (d Definition) Marshal() ([]byte, error) {
	out := d
	out.Selector = Spec(normalize(d.Selector).(map[string]any))
	out.Poster = Spec(normalize(d.Poster).(map[string]any))
	return json.Marshal(out)
}

// FormatOf picks the format from a file name.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e.ext == ext {
			return e.format, nil
		}
	}
	return "", fmt.Errorf("unsupported job definition format %q", ext)
}

// ParseDefinition decodes a definition in the given format.
func ParseDefinition(data []byte, format Format) (Definition, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return Definition{}, err
	}
	return fromRaw(raw)
}

// ReadDefinition loads the definition stored in path. A definition without
// a name takes the file's base name.
func ReadDefinition(path string) (Definition, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return readNamed(path, name)
}

// LoadDefinition finds dir/<name>.{json,toml,yaml,yml} and loads it.
func LoadDefinition(dir, name string) (Definition, error) {
	for _, e := range extensions {
		path := filepath.Join(dir, name+e.ext)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return readNamed(path, name)
	}
	return Definition{}, fmt.Errorf("%w: %s in %s", ErrDefinitionNotFound, name, dir)
}

// LoadDefinitions loads every definition file in dir, sorted by job name.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}

	seen := make(map[string]string)
	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := FormatOf(entry.Name()); err != nil {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		def, err := ReadDefinition(path)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("job %s defined in both %s and %s", def.Name, other, path)
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func readNamed(path, name string) (Definition, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Definition{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}

	raw, err := decodeRaw(data, format)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	if _, ok := raw["name"]; !ok {
		raw["name"] = name
	}

	def, err := fromRaw(raw)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func decodeRaw(data []byte, format Format) (map[string]any, error) {
	var raw map[string]any
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported job definition format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s definition: %w", format, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func fromRaw(raw map[string]any) (Definition, error) {
	var def Definition
	if err := Spec(raw).Decode(&def); err != nil {
		return Definition{}, err
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}
