package pinmap

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed boards/*.yaml
var boardFS embed.FS

type tableFile struct {
	Name       string    `yaml:"name"`
	PortPrefix string    `yaml:"port_prefix"`
	Pins       []pinFile `yaml:"pins"`
}

type pinFile struct {
	Port      int      `yaml:"port"`
	Pin       int      `yaml:"pin"`
	Functions []string `yaml:"functions"`
}

// Load reads a pin table in YAML form.
func Load(r io.Reader) (*Table, error) {
	var tf tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("failed to parse pin table: %w", err)
	}

	t := &Table{Board: tf.Name}
	switch strings.ToLower(tf.PortPrefix) {
	case "", "letter":
		t.Prefix = LetterPrefix
	case "digit":
		t.Prefix = DigitPrefix
	default:
		return nil, fmt.Errorf("pin table %s: unknown port_prefix %q", tf.Name, tf.PortPrefix)
	}

	for _, pf := range tf.Pins {
		if pf.Port < 0 || pf.Pin < 0 || pf.Pin > pinMask {
			return nil, fmt.Errorf("pin table %s: invalid pin %d/%d", tf.Name, pf.Port, pf.Pin)
		}
		if t.Prefix == LetterPrefix && pf.Port >= 26 {
			return nil, fmt.Errorf("pin table %s: port %d has no letter", tf.Name, pf.Port)
		}

		encoded := Encode(pf.Port, pf.Pin)
		if _, dup := t.Lookup(encoded); dup {
			return nil, fmt.Errorf("pin table %s: %s listed twice", tf.Name, t.PinName(encoded))
		}

		info := PinInfo{Pin: encoded}
		for _, fn := range pf.Functions {
			f, err := ParseFunction(fn)
			if err != nil {
				return nil, fmt.Errorf("pin table %s, %s: %w", tf.Name, t.PinName(encoded), err)
			}
			info.Functions = append(info.Functions, f)
		}
		t.Pins = append(t.Pins, info)
	}

	return t, nil
}

// Boards lists the names of the built-in board tables.
func Boards() []string {
	entries, err := boardFS.ReadDir("boards")
	if err != nil {
		return nil
	}
	names := lo.FilterMap(entries, func(e fs.DirEntry, _ int) (string, bool) {
		return strings.TrimSuffix(e.Name(), ".yaml"), strings.HasSuffix(e.Name(), ".yaml")
	})
	slices.Sort(names)
	return names
}

// LoadBoard loads a built-in board table by name.
func LoadBoard(name string) (*Table, error) {
	if !lo.Contains(Boards(), name) {
		return nil, fmt.Errorf("unknown board %q (available: %s)", name, strings.Join(Boards(), ", "))
	}
	f, err := boardFS.Open(path.Join("boards", name+".yaml"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
