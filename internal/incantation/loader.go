package incantation

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a glyphcast library YAML file.
//
// Example:
//
//	incantations:
//	  - id: fire_ball
//	    display_name: 爆裂魔法
//	    incantation: 比那黑更黑的深渊祈求吾之深红闪光觉醒之时已然降临
//	    element: fire
//	    base_power: 103
//	    cooldown_turns: 3
//	    effects: [damage, burn]
//	    volume_curve: shout
//	    variants: [比那黑更黑的深渊祈求吾之深红闪光觉醒之时以然降临]
type File struct {
	Incantations []FileEntry `yaml:"incantations"`
}

// FileEntry is the YAML form of an [Entry].
type FileEntry struct {
	ID              string       `yaml:"id"`
	DisplayName     string       `yaml:"display_name"`
	Incantation     string       `yaml:"incantation"`
	AlternateName   string       `yaml:"alternate_name"`
	Element         string       `yaml:"element"`
	BasePower       float64      `yaml:"base_power"`
	PowerMultiplier float64      `yaml:"power_multiplier"`
	Cost            float64      `yaml:"cost"`
	CooldownTurns   int          `yaml:"cooldown_turns"`
	Effects         EffectSet    `yaml:"effects"`
	VolumeCurve     *VolumeCurve `yaml:"volume_curve"`
	MinMagnitude    float64      `yaml:"min_magnitude"`
	MaxMagnitude    float64      `yaml:"max_magnitude"`
	Variants        []string     `yaml:"variants"`
}

// Entry converts the file form into an [Entry].
func (f FileEntry) Entry() Entry {
	return Entry{
		ID:              f.ID,
		DisplayName:     f.DisplayName,
		Incantation:     f.Incantation,
		AlternateName:   f.AlternateName,
		Element:         f.Element,
		BasePower:       f.BasePower,
		PowerMultiplier: f.PowerMultiplier,
		Cost:            f.Cost,
		CooldownTurns:   f.CooldownTurns,
		Effects:         f.Effects,
		VolumeCurve:     f.VolumeCurve,
		MinMagnitude:    f.MinMagnitude,
		MaxMagnitude:    f.MaxMagnitude,
		Variants:        f.Variants,
	}
}

// LoadFile reads a library file from disk and registers its entries into
// lib. See [Load].
func LoadFile(lib *Library, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("incantation: open library %q: %w", path, err)
	}
	defer f.Close()

	if err := Load(lib, f); err != nil {
		return fmt.Errorf("incantation: load library %q: %w", path, err)
	}
	return nil
}

// Load decodes library YAML from r and registers every entry into lib.
// Every registration failure is collected and returned as a joined error so
// a broken library file reports all of its problems at once.
func Load(lib *Library, r io.Reader) error {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("incantation: decode yaml: %w", err)
	}

	var errs []error
	for i, fe := range file.Incantations {
		if err := lib.Register(fe.Entry()); err != nil {
			errs = append(errs, fmt.Errorf("incantations[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
