// Package content loads YAML seed files describing avatars, elements, and
// map templates, and applies them to the database. Seed files let a fresh
// deployment start with a usable content catalog.
package content

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cjmeyer/gridverse/internal/storage/postgres"
)

// AvatarSeed describes one avatar to create.
type AvatarSeed struct {
	Name     string `yaml:"name"`
	ImageURL string `yaml:"image_url"`
}

// ElementSeed describes one element to create. Key names the element within
// the seed file so map placements can reference it.
type ElementSeed struct {
	Key      string `yaml:"key"`
	ImageURL string `yaml:"image_url"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Static   bool   `yaml:"static"`
}

// PlacementSeed places an element, by key, within a map template.
type PlacementSeed struct {
	Element string `yaml:"element"`
	X       int    `yaml:"x"`
	Y       int    `yaml:"y"`
}

// MapSeed describes one map template to create.
type MapSeed struct {
	Name      string          `yaml:"name"`
	Thumbnail string          `yaml:"thumbnail"`
	Width     int             `yaml:"width"`
	Height    int             `yaml:"height"`
	Elements  []PlacementSeed `yaml:"elements"`
}

// Seed is a full content seed file.
type Seed struct {
	Avatars  []AvatarSeed  `yaml:"avatars"`
	Elements []ElementSeed `yaml:"elements"`
	Maps     []MapSeed     `yaml:"maps"`
}

// Load reads and validates a seed file.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a validated Seed or a non-nil error.
func Load(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parsing seed file: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// Validate checks internal consistency: unique element keys, positive
// dimensions, and map placements that reference known keys and fit inside
// their map.
func (s Seed) Validate() error {
	keys := map[string]ElementSeed{}
	for _, el := range s.Elements {
		if el.Key == "" {
			return fmt.Errorf("element with image %q has no key", el.ImageURL)
		}
		if _, dup := keys[el.Key]; dup {
			return fmt.Errorf("duplicate element key %q", el.Key)
		}
		if el.Width < 1 || el.Height < 1 {
			return fmt.Errorf("element %q has non-positive dimensions %dx%d", el.Key, el.Width, el.Height)
		}
		keys[el.Key] = el
	}

	for _, av := range s.Avatars {
		if av.Name == "" || av.ImageURL == "" {
			return fmt.Errorf("avatar entries require name and image_url")
		}
	}

	for _, m := range s.Maps {
		if m.Width < 1 || m.Height < 1 {
			return fmt.Errorf("map %q has non-positive dimensions %dx%d", m.Name, m.Width, m.Height)
		}
		for _, p := range m.Elements {
			el, ok := keys[p.Element]
			if !ok {
				return fmt.Errorf("map %q references unknown element key %q", m.Name, p.Element)
			}
			if p.X < 0 || p.Y < 0 || p.X+el.Width > m.Width || p.Y+el.Height > m.Height {
				return fmt.Errorf("map %q places element %q out of bounds at (%d,%d)", m.Name, p.Element, p.X, p.Y)
			}
		}
	}
	return nil
}

// AvatarCreator creates avatars. *postgres.AvatarRepository satisfies it.
type AvatarCreator interface {
	Create(ctx context.Context, name, imageURL string) (postgres.Avatar, error)
}

// ElementCreator creates elements. *postgres.ElementRepository satisfies it.
type ElementCreator interface {
	Create(ctx context.Context, imageURL string, width, height int, static bool) (postgres.Element, error)
}

// MapCreator creates map templates. *postgres.MapRepository satisfies it.
type MapCreator interface {
	Create(ctx context.Context, name, thumbnail string, width, height int, placements []postgres.MapPlacement) (postgres.GameMap, error)
}

// Apply writes the seed's content to the stores. Elements are created first
// so map placements can resolve seed keys to element ids.
//
// Precondition: seed must have passed Validate.
// Postcondition: every avatar, element, and map in the seed exists, or an
// error is returned part-way through.
func Apply(ctx context.Context, seed Seed, avatars AvatarCreator, elements ElementCreator, maps MapCreator) error {
	elementIDs := make(map[string]string, len(seed.Elements))
	for _, el := range seed.Elements {
		created, err := elements.Create(ctx, el.ImageURL, el.Width, el.Height, el.Static)
		if err != nil {
			return fmt.Errorf("creating element %q: %w", el.Key, err)
		}
		elementIDs[el.Key] = created.ID
	}

	for _, av := range seed.Avatars {
		if _, err := avatars.Create(ctx, av.Name, av.ImageURL); err != nil {
			return fmt.Errorf("creating avatar %q: %w", av.Name, err)
		}
	}

	for _, m := range seed.Maps {
		placements := make([]postgres.MapPlacement, 0, len(m.Elements))
		for _, p := range m.Elements {
			placements = append(placements, postgres.MapPlacement{
				ElementID: elementIDs[p.Element],
				X:         p.X,
				Y:         p.Y,
			})
		}
		if _, err := maps.Create(ctx, m.Name, m.Thumbnail, m.Width, m.Height, placements); err != nil {
			return fmt.Errorf("creating map %q: %w", m.Name, err)
		}
	}
	return nil
}
