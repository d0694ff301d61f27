// Package geo maps coordinates to administrative cities and provides the
// position sources used to find the device's coordinates.
package geo

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed cities.yaml
var citiesYAML []byte

// City is a gazetteer entry.
type City struct {
	Name             string  `yaml:"name" json:"name"`
	Lat              float64 `yaml:"lat" json:"lat"`
	Lng              float64 `yaml:"lng" json:"lng"`
	AdministrativeID string  `yaml:"id" json:"administrativeId"`
}

// Gazetteer is a static, ordered list of known cities.
type Gazetteer struct {
	cities []City
}

type gazetteerFile struct {
	Cities []City `yaml:"cities"`
}

var (
	defaultOnce      sync.Once
	defaultGazetteer *Gazetteer
)

// NewGazetteer builds a gazetteer from cities, preserving their order.
func NewGazetteer(cities []City) *Gazetteer {
	cp := make([]City, len(cities))
	copy(cp, cities)
	return &Gazetteer{cities: cp}
}

// LoadGazetteer parses a YAML gazetteer document.
func LoadGazetteer(data []byte) (*Gazetteer, error) {
	var f gazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing gazetteer: %w", err)
	}
	for i, c := range f.Cities {
		if c.Name == "" || c.AdministrativeID == "" {
			return nil, fmt.Errorf("gazetteer entry %d: name and id are required", i)
		}
	}
	return NewGazetteer(f.Cities), nil
}

// DefaultGazetteer returns the embedded list of Turkish provinces.
func DefaultGazetteer() *Gazetteer {
	defaultOnce.Do(func() {
		g, err := LoadGazetteer(citiesYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded gazetteer: %v", err))
		}
		defaultGazetteer = g
	})
	return defaultGazetteer
}

// Cities returns a copy of the gazetteer entries in order.
func (g *Gazetteer) Cities() []City {
	cp := make([]City, len(g.cities))
	copy(cp, g.cities)
	return cp
}

// Len returns the number of entries.
func (g *Gazetteer) Len() int {
	return len(g.cities)
}

// Nearest returns the city closest to (lat, lng) by planar distance over raw
// degrees. Ties keep the earlier entry. ok is false for an empty gazetteer.
func (g *Gazetteer) Nearest(lat, lng float64) (City, bool) {
	var (
		nearest City
		found   bool
	)
	minDist := math.Inf(1)
	for _, c := range g.cities {
		d := math.Hypot(lat-c.Lat, lng-c.Lng)
		if d < minDist {
			minDist = d
			nearest = c
			found = true
		}
	}
	return nearest, found
}

// Lookup finds a city by name. An exact match wins; otherwise names are
// compared after Turkish normalization.
func (g *Gazetteer) Lookup(name string) (City, bool) {
	for _, c := range g.cities {
		if c.Name == name {
			return c, true
		}
	}
	want := NormalizeName(name)
	for _, c := range g.cities {
		if NormalizeName(c.Name) == want {
			return c, true
		}
	}
	return City{}, false
}

// Filter returns cities whose normalized name contains the normalized query.
// An empty query returns every city.
func (g *Gazetteer) Filter(query string) []City {
	q := NormalizeName(query)
	if q == "" {
		return g.Cities()
	}
	var out []City
	for _, c := range g.cities {
		if strings.Contains(NormalizeName(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}
