package utils

import (
	"time"
	_ "time/tzdata"
)

var newYorkLoc *time.Location

func init() {
	var err error
	newYorkLoc, err = time.LoadLocation("America/New_York")
	if err != nil {
		newYorkLoc = time.UTC
	}
}

// LoadLocation resolves name, falling back to the New York exchange location
func LoadLocation(name string) *time.Location {
	if name == "" {
		return newYorkLoc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return newYorkLoc
	}
	return loc
}

// GetLocation returns the New York *time.Location
func GetLocation() *time.Location {
	return newYorkLoc
}
