package feeders

import (
	"fmt"

	"github.com/joho/godotenv"
)

// DotEnvFeeder populates `env`-tagged fields from a .env file without
// touching the process environment.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a new DotEnvFeeder reading filePath.
func NewDotEnvFeeder(filePath, prefix string) DotEnvFeeder {
	return DotEnvFeeder{Path: filePath, Prefix: prefix}
}

// Feed parses the file and sets target fields from it.
func (d DotEnvFeeder) Feed(target any) error {
	vars, err := godotenv.Read(d.Path)
	if err != nil {
		return fmt.Errorf("failed to read .env file %s: %w", d.Path, err)
	}
	return feedFromLookup(target, d.Prefix, func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

// Source returns the file path.
func (d DotEnvFeeder) Source() string {
	return d.Path
}
