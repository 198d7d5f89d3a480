package pipeline

import (
	"slices"
	"strings"

	"github.com/sells-group/census-geo/internal/model"
)

// step describes how a level is qualified in a Census query.
type step struct {
	// parents qualify the level itself, nearest first.
	parents []model.Level
	// child is the wildcard target when the level is expanded as a sublevel.
	child model.Level
	// childIn qualifies the wildcard target.
	childIn []model.Level
}

var hierarchy = map[model.Level]step{
	model.LevelUS: {
		child: model.LevelState,
	},
	model.LevelState: {
		child:   model.LevelCounty,
		childIn: []model.Level{model.LevelState},
	},
	model.LevelCounty: {
		parents: []model.Level{model.LevelState},
		child:   model.LevelTract,
		childIn: []model.Level{model.LevelCounty, model.LevelState},
	},
	model.LevelPlace: {
		parents: []model.Level{model.LevelState},
		child:   model.LevelPlace,
		childIn: []model.Level{model.LevelState},
	},
	model.LevelTract: {
		parents: []model.Level{model.LevelCounty, model.LevelState},
		child:   model.LevelBlockGroup,
		childIn: []model.Level{model.LevelTract, model.LevelCounty, model.LevelState},
	},
	model.LevelBlockGroup: {
		parents: []model.Level{model.LevelTract, model.LevelCounty, model.LevelState},
	},
}

// containerIn qualifies every member of the request level inside an
// explicit container.
var containerIn = map[model.Level][]model.Level{
	model.LevelUS:     nil,
	model.LevelState:  {model.LevelState},
	model.LevelPlace:  {model.LevelState},
	model.LevelCounty: {model.LevelCounty, model.LevelState},
	model.LevelTract:  {model.LevelTract, model.LevelCounty, model.LevelState},
}

// geographyQualifiers returns the for/in clause selecting the request's
// geography, and whether the query still fans out below the request level.
// Block groups have no finer level so a sublevel request for one collapses
// into a single-geography query.
func geographyQualifiers(req model.GeoRequest) (string, bool) {
	level := req.Level
	if !req.Sublevel {
		return single(req), false
	}

	if in, ok := containerIn[req.Container]; ok && req.Container != "" {
		if level == model.LevelBlockGroup && (req.Container == model.LevelState || req.Container == model.LevelPlace) {
			in = append(slices.Clone(in), model.LevelCounty)
		}
		return "for=" + level.QueryName() + ":*" + inClause(req, in), true
	}

	if level == model.LevelBlockGroup {
		return single(req), false
	}
	s := hierarchy[level]
	return "for=" + s.child.QueryName() + ":*" + inClause(req, s.childIn), true
}

func single(req model.GeoRequest) string {
	if req.Level == model.LevelUS {
		return "for=us:1"
	}
	v, _ := req.FIPS(string(req.Level))
	return "for=" + req.Level.QueryName() + ":" + v + inClause(req, hierarchy[req.Level].parents)
}

func inClause(req model.GeoRequest, levels []model.Level) string {
	if len(levels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		v, _ := req.FIPS(string(l))
		parts = append(parts, l.QueryName()+":"+v)
	}
	return "&in=" + strings.Join(parts, "+")
}
