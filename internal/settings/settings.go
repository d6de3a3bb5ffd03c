// Package settings persists the crop selection and reloads it on change.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/GriffinCanCode/slidecapture/internal/crop"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/syncx"
)

// Crop is the on-disk and wire form of a crop selection, in percent.
type Crop struct {
	Direction        string  `yaml:"direction" json:"direction"`
	WidthPercentage  float64 `yaml:"widthPercentage" json:"widthPercentage"`
	HeightPercentage float64 `yaml:"heightPercentage" json:"heightPercentage"`
}

const minPercentage = crop.MinFraction * 100

// FromRegion converts a region to percentages.
func FromRegion(r crop.Region) Crop {
	return Crop{
		Direction:        string(r.Anchor),
		WidthPercentage:  r.WidthFraction * 100,
		HeightPercentage: r.HeightFraction * 100,
	}
}

// Region converts and validates the selection. Sides under the minimum
// crop fraction are raised to it.
func (c Crop) Region() (crop.Region, error) {
	r := crop.Region{
		Anchor:         crop.Anchor(c.Direction),
		WidthFraction:  c.WidthPercentage / 100,
		HeightFraction: c.HeightPercentage / 100,
	}
	if err := r.Validate(); err != nil {
		return crop.Region{}, err
	}
	return r.Clamped(), nil
}

// Store holds the current crop, backed by a YAML file.
type Store struct {
	path  string
	guard *syncx.RWGuard[Crop]
}

// Open loads path. A missing file yields fallback and is not created
// until the first Save.
func Open(path string, fallback crop.Region) (*Store, error) {
	s := &Store{path: path, guard: syncx.NewGuard(FromRegion(fallback))}
	c, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	s.guard.Set(c)
	return s, nil
}

func readFile(path string) (Crop, error) {
	var c Crop
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, apperrors.Wrapf(err, apperrors.Configuration, "parse %s", path)
	}
	if _, err := c.Region(); err != nil {
		return c, apperrors.Wrapf(err, apperrors.Configuration, "invalid crop in %s", path)
	}
	return c, nil
}

func (s *Store) Path() string { return s.path }

// Get returns the current selection.
func (s *Store) Get() Crop { return s.guard.Get() }

// Region returns the current selection as a region.
func (s *Store) Region() crop.Region {
	r, _ := s.guard.Get().Region()
	return r
}

// Changed is closed by the next update.
func (s *Store) Changed() <-chan struct{} { return s.guard.Changed() }

// Save validates c, writes it and makes it current. The stored selection
// is the clamped one.
func (s *Store) Save(c Crop) error {
	if _, err := c.Region(); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidArgument, "crop settings")
	}
	c.WidthPercentage = max(c.WidthPercentage, minPercentage)
	c.HeightPercentage = max(c.HeightPercentage, minPercentage)
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "write settings")
	}
	s.guard.Set(c)
	return nil
}

// reload re-reads the file and reports whether the selection changed.
func (s *Store) reload() (Crop, bool, error) {
	c, err := readFile(s.path)
	if err != nil {
		return c, false, err
	}
	changed := false
	s.guard.Write(func(cur *Crop) {
		if *cur != c {
			*cur = c
			changed = true
		}
	})
	return c, changed, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
