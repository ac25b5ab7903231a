package roster

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mmynk/rollcall/internal/models"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Staff []models.StaffMember `yaml:"staff"`
}

// DefaultSeed returns the built-in roster.
func DefaultSeed() []models.StaffMember {
	entries, err := parseSeed(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("roster: embedded seed is invalid: %v", err))
	}
	return entries
}

// LoadSeed reads a seed roster from a YAML file. An empty path returns the
// built-in roster.
func LoadSeed(path string) ([]models.StaffMember, error) {
	if path == "" {
		return DefaultSeed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}
	entries, err := parseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing seed file %s: %w", path, err)
	}
	return entries, nil
}

func parseSeed(data []byte) ([]models.StaffMember, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for i, s := range f.Staff {
		if s.Name == "" || s.Email == "" {
			return nil, fmt.Errorf("entry %d: name and email are required", i+1)
		}
	}
	return f.Staff, nil
}
