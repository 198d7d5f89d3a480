package model

// Level is a Census geography granularity.
type Level string

// Supported geography levels, from coarsest to finest.
const (
	LevelUS         Level = "us"
	LevelState      Level = "state"
	LevelCounty     Level = "county"
	LevelPlace      Level = "place"
	LevelTract      Level = "tract"
	LevelBlockGroup Level = "blockGroup"
)

// Levels lists every supported level.
var Levels = []Level{LevelUS, LevelState, LevelCounty, LevelPlace, LevelTract, LevelBlockGroup}

// Valid reports whether l is one of the supported levels.
func (l Level) Valid() bool {
	for _, v := range Levels {
		if v == l {
			return true
		}
	}
	return false
}

// CatalogName is the level's name in the Census geography catalogs.
func (l Level) CatalogName() string {
	if l == LevelBlockGroup {
		return "block group"
	}
	return string(l)
}

// QueryName is the level's name inside a for/in query clause.
func (l Level) QueryName() string {
	if l == LevelBlockGroup {
		return "block+Group"
	}
	return string(l)
}

// FeatureField is the TIGERweb attribute that identifies a feature at this
// level. Returns "" for us, which has a single feature.
func (l Level) FeatureField() string {
	switch l {
	case LevelState:
		return "STATE"
	case LevelCounty:
		return "COUNTY"
	case LevelTract:
		return "TRACT"
	case LevelBlockGroup:
		return "BLKGRP"
	case LevelPlace:
		return "PLACE"
	default:
		return ""
	}
}

// Child is the next level down in the boundary hierarchy, used when a
// sublevel request expands a container into its children.
func (l Level) Child() Level {
	switch l {
	case LevelUS:
		return LevelState
	case LevelState:
		return LevelCounty
	case LevelCounty, LevelPlace:
		return LevelTract
	default:
		return LevelBlockGroup
	}
}
