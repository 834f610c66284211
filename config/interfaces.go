// Package config loads typed configuration structs from ordered feeders,
// applying `default` tags first and checking `required` tags last.
package config

import "time"

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(target any) error
}

// SourceFeeder is a Feeder that can describe where it reads from. File-based
// feeders return their path, which the Watcher uses.
type SourceFeeder interface {
	Feeder
	Source() string
}

// KeyFeeder is a Feeder that can populate a target from one top-level section
// of its source.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// Validator is implemented by configuration structs needing checks beyond
// `required` tags. It is called after every feeder has run.
type Validator interface {
	Validate() error
}

// ConfigSource records the outcome of one feeder during the last Load.
type ConfigSource struct {
	Name       string     `json:"name"`
	Optional   bool       `json:"optional"`
	Loaded     bool       `json:"loaded"`
	Skipped    bool       `json:"skipped"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
	Error      string     `json:"error,omitempty"`
}
