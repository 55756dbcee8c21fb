package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Kit is a rhythm drum kit selected with a Program Change on the rhythm channel.
type Kit struct {
	Program int    `toml:"program"`
	Name    string `toml:"name"`
}

type kitFile struct {
	Kit []Kit `toml:"kit"`
}

// DefaultKits is the factory kit list of the pedal.
func DefaultKits() []Kit {
	names := []string{
		"Studio Kit", "Live", "Light", "Heavy", "Rock", "Metal", "Jazz", "Brushes",
		"Cajon", "Drum&Bs", "R&B", "Dance", "Techno", "Dance Beats", "Hiphop", "808 + 909",
	}
	kits := make([]Kit, 0, len(names))
	for i, name := range names {
		kits = append(kits, Kit{Program: i + 1, Name: name})
	}
	return kits
}

func LoadKits(path string) ([]Kit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read kits: %w", err)
	}
	return ParseKits(data)
}

func ParseKits(data []byte) ([]Kit, error) {
	var f kitFile
	err := toml.Unmarshal(data, &f)
	if err != nil {
		return nil, fmt.Errorf("cannot parse kits: %w", err)
	}

	seen := make(map[int]struct{}, len(f.Kit))
	for _, k := range f.Kit {
		if k.Program < 1 || k.Program > 127 {
			return nil, fmt.Errorf("kit %q: program out of range 1-127: %d", k.Name, k.Program)
		}
		if k.Name == "" {
			return nil, fmt.Errorf("kit %d: missing name", k.Program)
		}
		if _, dup := seen[k.Program]; dup {
			return nil, fmt.Errorf("kit %q: duplicated program %d", k.Name, k.Program)
		}
		seen[k.Program] = struct{}{}
	}
	return f.Kit, nil
}

// KitName returns the name of a kit program or a generic label.
func KitName(kits []Kit, program int) string {
	for _, k := range kits {
		if k.Program == program {
			return k.Name
		}
	}
	return fmt.Sprintf("Kit %d", program)
}
