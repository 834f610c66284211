package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	ErrConfigNil       = errors.New("config is nil")
	ErrConfigNotStruct = errors.New("config must be a non-nil pointer to a struct")
)

type feederEntry struct {
	feeder   Feeder
	optional bool
}

// Loader runs its feeders in the order they were added; later feeders
// override earlier ones.
type Loader struct {
	mu      sync.RWMutex
	feeders []feederEntry
	sources []*ConfigSource
}

// NewLoader creates a loader with the given required feeders.
func NewLoader(feeders ...Feeder) *Loader {
	l := &Loader{}
	for _, f := range feeders {
		l.AddFeeder(f)
	}
	return l
}

// AddFeeder appends a feeder whose failure fails Load.
func (l *Loader) AddFeeder(f Feeder) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeders = append(l.feeders, feederEntry{feeder: f})
	return l
}

// AddOptionalFeeder appends a feeder that is skipped when its file does not exist.
func (l *Loader) AddOptionalFeeder(f Feeder) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeders = append(l.feeders, feederEntry{feeder: f, optional: true})
	return l
}

// Load applies defaults, runs every feeder, checks required fields and finally
// calls Validate when cfg implements Validator.
func (l *Loader) Load(ctx context.Context, cfg any) error {
	if cfg == nil {
		return ErrConfigNil
	}
	if err := ProcessDefaults(cfg); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = make([]*ConfigSource, 0, len(l.feeders))

	for _, entry := range l.feeders {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := &ConfigSource{Name: sourceName(entry.feeder), Optional: entry.optional}
		l.sources = append(l.sources, src)

		err := entry.feeder.Feed(cfg)
		if err != nil && entry.optional && errors.Is(err, fs.ErrNotExist) {
			src.Skipped = true
			continue
		}
		if err != nil {
			src.Error = err.Error()
			return fmt.Errorf("config feeder %s: %w", src.Name, err)
		}
		now := time.Now()
		src.Loaded = true
		src.LastLoaded = &now
	}

	if err := ValidateRequired(cfg); err != nil {
		return err
	}
	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadSection loads a single top-level section into target. Feeders
// implementing KeyFeeder decode only key; other feeders, such as the env
// feeders, feed target directly. Defaults, required tags and Validator apply to
// target as in Load. Source status is not recorded.
func (l *Loader) LoadSection(ctx context.Context, key string, target any) error {
	if target == nil {
		return ErrConfigNil
	}
	if err := ProcessDefaults(target); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}

	l.mu.RLock()
	entries := slices.Clone(l.feeders)
	l.mu.RUnlock()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if kf, ok := entry.feeder.(KeyFeeder); ok {
			err = kf.FeedKey(key, target)
		} else {
			err = entry.feeder.Feed(target)
		}
		if err != nil && entry.optional && errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config feeder %s section %s: %w", sourceName(entry.feeder), key, err)
		}
	}

	if err := ValidateRequired(target); err != nil {
		return err
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// Sources returns the outcome of each feeder from the last Load.
func (l *Loader) Sources() []ConfigSource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ConfigSource, len(l.sources))
	for i, s := range l.sources {
		out[i] = *s
	}
	return out
}

// Paths returns the file paths of feeders that read files.
func (l *Loader) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var paths []string
	for _, entry := range l.feeders {
		if sf, ok := entry.feeder.(SourceFeeder); ok && isFileSource(sf.Source()) {
			if !slices.Contains(paths, sf.Source()) {
				paths = append(paths, sf.Source())
			}
		}
	}
	return paths
}

func sourceName(f Feeder) string {
	if sf, ok := f.(SourceFeeder); ok {
		return sf.Source()
	}
	return fmt.Sprintf("%T", f)
}

func isFileSource(name string) bool {
	return name != "" && name != "env" && !strings.HasPrefix(name, "env:")
}
