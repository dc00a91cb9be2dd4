// Package manifest loads stem slots from a YAML file.
//
//	songs:
//	  - id: agust
//	    stems:
//	      - source: agust/bass.mp3
//	      - source: agust/drums.mp3
//	        label: Kit
//	stems:
//	  - source: fx/rain.ogg
//
// Relative sources are resolved against the manifest's directory. URLs are
// kept as they are.
package manifest

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/stemsync/internal/stem"
)

// StemSpec is one stem slot.
type StemSpec struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
	Label  string `yaml:"label"`
	Handle string `yaml:"handle"`
}

// SongSpec groups stems that play in lockstep.
type SongSpec struct {
	ID    string     `yaml:"id"`
	Stems []StemSpec `yaml:"stems"`
}

// Manifest is the decoded file.
type Manifest struct {
	Songs []SongSpec `yaml:"songs"`
	Stems []StemSpec `yaml:"stems"` // stems outside any song group

	baseDir string
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: load %s: %w", path, err)
	}
	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest YAML. baseDir anchors relative sources.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	for i, s := range m.Songs {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("song %d has no id", i)
		}
	}
	m.baseDir = baseDir
	return &m, nil
}

// Configs flattens the manifest into stem slots in file order: song stems
// first, then loose stems.
func (m *Manifest) Configs() []stem.Config {
	var out []stem.Config
	for _, song := range m.Songs {
		for _, s := range song.Stems {
			out = append(out, m.config(s, strings.TrimSpace(song.ID)))
		}
	}
	for _, s := range m.Stems {
		out = append(out, m.config(s, ""))
	}
	return out
}

func (m *Manifest) config(s StemSpec, songID string) stem.Config {
	return stem.Config{
		ID:     s.ID,
		Source: m.resolve(s.Source),
		SongID: songID,
		Label:  s.Label,
		Handle: s.Handle,
	}
}

func (m *Manifest) resolve(source string) string {
	source = strings.TrimSpace(source)
	if source == "" || m.baseDir == "" {
		return source
	}
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return source
	}
	if filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(m.baseDir, source)
}
