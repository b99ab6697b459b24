package readiness

import (
	"math"

	"pulse-analytics/pkg/domain"
)

// FormulaVersion is recorded in snapshot metadata. Bump when weights or the
// combination rule change.
const FormulaVersion = "v1"

// Weights combine readiness components into the overall score. They must sum
// to 1.0 when every component is present; when some are missing the remaining
// weights are renormalized over the present subset.
var Weights = map[string]float64{
	"readiness_technical":     0.3,
	"readiness_communication": 0.3,
	"readiness_structure":     0.2,
	"readiness_behavioral":    0.2,
}

// componentSkillTags maps a skill tag to the readiness component it feeds.
var componentSkillTags = map[domain.SkillTag]string{
	domain.SkillTechnicalDepth:     "readiness_technical",
	domain.SkillCommunication:      "readiness_communication",
	domain.SkillStructure:          "readiness_structure",
	domain.SkillBehavioralExamples: "readiness_behavioral",
}

// Components holds the per-dimension readiness values derived from skill
// aggregates. Nil means the user has no scored events for that dimension in
// the window.
type Components struct {
	Technical     *float64
	Communication *float64
	Structure     *float64
	Behavioral    *float64

	// OverallFromEvents carries the aggregate of the "overall" skill tag,
	// used as a fallback when no component can be computed.
	OverallFromEvents *float64
}

func (c Components) byName(name string) *float64 {
	switch name {
	case "readiness_technical":
		return c.Technical
	case "readiness_communication":
		return c.Communication
	case "readiness_structure":
		return c.Structure
	case "readiness_behavioral":
		return c.Behavioral
	}
	return nil
}

// ComputeComponents derives readiness components as sample-size-weighted
// means of the per-skill aggregates, rounded to two decimals.
func ComputeComponents(aggregates []SkillAggregate) Components {
	sums := map[string]float64{}
	samples := map[string]int{}

	var out Components

	for _, agg := range aggregates {
		if agg.SkillTag == domain.SkillOverall {
			v := agg.AvgScore
			out.OverallFromEvents = &v
		}
		component, ok := componentSkillTags[agg.SkillTag]
		if !ok {
			continue
		}
		sums[component] += agg.AvgScore * float64(agg.SampleSize)
		samples[component] += agg.SampleSize
	}

	set := func(dst **float64, name string) {
		if samples[name] > 0 {
			v := round2(sums[name] / float64(samples[name]))
			*dst = &v
		}
	}
	set(&out.Technical, "readiness_technical")
	set(&out.Communication, "readiness_communication")
	set(&out.Structure, "readiness_structure")
	set(&out.Behavioral, "readiness_behavioral")

	return out
}

// OverallFromComponents combines components into the overall readiness score.
// Weights are renormalized to the subset of present components; when no
// component is present the "overall" aggregate is used as a fallback. Returns
// nil when readiness cannot be determined.
func OverallFromComponents(c Components) *float64 {
	var totalWeight float64
	for name, w := range Weights {
		if c.byName(name) != nil {
			totalWeight += w
		}
	}

	if totalWeight > 0 {
		var overall float64
		for name, w := range Weights {
			v := c.byName(name)
			if v == nil {
				continue
			}
			overall += *v * (w / totalWeight)
		}
		rounded := round2(overall)
		return &rounded
	}

	if c.OverallFromEvents != nil {
		rounded := round2(*c.OverallFromEvents)
		return &rounded
	}

	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
