package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognizedRegion is returned when a region name is not in the label table
var ErrUnrecognizedRegion = errors.New("unrecognized region")

// Region is one of the anatomical subdivisions of the lung mask
type Region string

const (
	Bilateral    Region = "bilat"
	Left         Region = "left"
	Right        Region = "right"
	Upper        Region = "upper"
	Lower        Region = "lower"
	Ventral      Region = "ventral"
	Dorsal       Region = "dorsal"
	UpperVentral Region = "upper_ventral"
	UpperDorsal  Region = "upper_dorsal"
	LowerVentral Region = "lower_ventral"
	LowerDorsal  Region = "lower_dorsal"
)

// AllRegions lists every known region in reporting order
var AllRegions = []Region{
	Bilateral,
	Left, Right,
	Upper, Lower,
	Ventral, Dorsal,
	UpperVentral, UpperDorsal,
	LowerVentral, LowerDorsal,
}

// Valid reports whether r is a known region
func (r Region) Valid() bool {
	for _, known := range AllRegions {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRegion converts a name into a Region
func ParseRegion(name string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(name)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedRegion, name)
	}
	return r, nil
}

// ParseRegions converts a list of names, rejecting unknown and duplicate entries
func ParseRegions(names []string) ([]Region, error) {
	regions := make([]Region, 0, len(names))
	seen := make(map[Region]bool, len(names))
	for _, name := range names {
		r, err := ParseRegion(name)
		if err != nil {
			return nil, err
		}
		if seen[r] {
			return nil, fmt.Errorf("region %q listed twice", r)
		}
		seen[r] = true
		regions = append(regions, r)
	}
	return regions, nil
}
