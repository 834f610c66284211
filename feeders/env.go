package feeders

import "os"

// EnvFeeder populates `env`-tagged fields from environment variables.
// With a Prefix of "APP", a field tagged env:"ADDR" reads APP_ADDR.
type EnvFeeder struct {
	Prefix string
}

// NewEnvFeeder creates a new EnvFeeder for the given variable prefix.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix}
}

// Feed sets target fields from the process environment.
func (e EnvFeeder) Feed(target any) error {
	return feedFromLookup(target, e.Prefix, os.LookupEnv)
}

// Source describes the feeder for diagnostics.
func (e EnvFeeder) Source() string {
	if e.Prefix == "" {
		return "env"
	}
	return "env:" + e.Prefix
}
