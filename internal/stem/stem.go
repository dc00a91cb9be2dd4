package stem

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Config describes one stem slot as supplied by the page or manifest.
type Config struct {
	ID     string // optional; positional id is used when empty
	Source string // URL or file path; empty marks the slot disabled
	SongID string // optional song group
	Label  string // optional display name
	Handle string // opaque UI handle, reported back untouched
}

// Stem is one independently loaded audio source within a song.
type Stem struct {
	ID       string
	SongID   string
	Source   string
	Label    string
	Handle   string
	Disabled bool
	Index    int // position in the configured order
}

// Registry is the immutable set of stems built at startup.
type Registry struct {
	stems []*Stem
	byID  map[string]*Stem
}

// Build creates the registry from configuration. Entries without a source are
// kept for UI bookkeeping but marked disabled.
func Build(configs []Config, logger zerolog.Logger) *Registry {
	r := &Registry{byID: make(map[string]*Stem, len(configs))}

	for i, c := range configs {
		id := strings.TrimSpace(c.ID)
		positional := fmt.Sprintf("t-%d", i)
		if id == "" {
			id = r.free(positional)
		} else if _, dup := r.byID[id]; dup {
			replacement := r.free(positional)
			logger.Warn().Str("stem", id).Str("replacement", replacement).Msg("Duplicate stem id")
			id = replacement
		}

		source := strings.TrimSpace(c.Source)
		songID := strings.TrimSpace(c.SongID)
		s := &Stem{
			ID:       id,
			SongID:   songID,
			Source:   source,
			Label:    DeriveLabel(c.Label, source, songID),
			Handle:   c.Handle,
			Disabled: source == "",
			Index:    i,
		}
		r.stems = append(r.stems, s)
		r.byID[id] = s
	}

	usable := r.UsableCount()
	logger.Info().Int("configured", len(configs)).Int("usable", usable).Msg("Stem registry built")
	if usable == 0 {
		logger.Warn().Msg("No usable stems found (check stem sources)")
	}
	return r
}

// free returns id, or id with the first "-<n>" suffix no stem has claimed.
func (r *Registry) free(id string) string {
	candidate := id
	for n := 1; ; n++ {
		if _, taken := r.byID[candidate]; !taken {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
}

// All returns every stem, disabled ones included, in configured order.
func (r *Registry) All() []*Stem {
	out := make([]*Stem, len(r.stems))
	copy(out, r.stems)
	return out
}

// Get looks a stem up by id.
func (r *Registry) Get(id string) (*Stem, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Song returns the usable stems of a song group in configured order.
func (r *Registry) Song(songID string) []*Stem {
	if songID == "" {
		return nil
	}
	var out []*Stem
	for _, s := range r.stems {
		if s.SongID == songID && !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Songs returns the distinct song ids in first-appearance order.
func (r *Registry) Songs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.stems {
		if s.SongID == "" || seen[s.SongID] {
			continue
		}
		seen[s.SongID] = true
		out = append(out, s.SongID)
	}
	return out
}

// Disable marks a stem unusable, e.g. when its source cannot be opened.
func (r *Registry) Disable(id string) {
	if s, ok := r.byID[id]; ok {
		s.Disabled = true
	}
}

// UsableCount returns how many stems can be played.
func (r *Registry) UsableCount() int {
	n := 0
	for _, s := range r.stems {
		if !s.Disabled {
			n++
		}
	}
	return n
}

// Usable reports whether at least one stem can be played.
func (r *Registry) Usable() bool {
	return r.UsableCount() > 0
}
