package domain

import "fmt"

// SkillTag names one scored dimension of a training session. Tags form a fixed
// vocabulary so aggregates stay comparable across sessions.
type SkillTag string

const (
	SkillTechnicalDepth     SkillTag = "technical_depth"
	SkillCommunication      SkillTag = "communication"
	SkillStructure          SkillTag = "structure"
	SkillBehavioralExamples SkillTag = "behavioral_examples"
	// SkillOverall carries the whole-session scorecard score rather than a
	// single dimension.
	SkillOverall SkillTag = "overall"
)

var knownSkillTags = map[SkillTag]struct{}{
	SkillTechnicalDepth:     {},
	SkillCommunication:      {},
	SkillStructure:          {},
	SkillBehavioralExamples: {},
	SkillOverall:            {},
}

// ParseSkillTag validates a tag against the vocabulary.
func ParseSkillTag(s string) (SkillTag, error) {
	tag := SkillTag(s)
	if _, ok := knownSkillTags[tag]; !ok {
		return "", fmt.Errorf("unknown skill tag: %s", s)
	}
	return tag, nil
}

// SkillTags returns the vocabulary in a stable order.
func SkillTags() []SkillTag {
	return []SkillTag{
		SkillTechnicalDepth,
		SkillCommunication,
		SkillStructure,
		SkillBehavioralExamples,
		SkillOverall,
	}
}

// PulseStep names the PULSE methodology step an event was scored in.
// Probe, Understand, Link, Solve, Earn, plus session_end for whole-session
// scorecard events.
type PulseStep string

const (
	StepProbe      PulseStep = "probe"
	StepUnderstand PulseStep = "understand"
	StepLink       PulseStep = "link"
	StepSolve      PulseStep = "solve"
	StepEarn       PulseStep = "earn"
	StepSessionEnd PulseStep = "session_end"
)

var knownPulseSteps = map[PulseStep]struct{}{
	StepProbe:      {},
	StepUnderstand: {},
	StepLink:       {},
	StepSolve:      {},
	StepEarn:       {},
	StepSessionEnd: {},
}

// ParsePulseStep validates a step name.
func ParsePulseStep(s string) (PulseStep, error) {
	step := PulseStep(s)
	if _, ok := knownPulseSteps[step]; !ok {
		return "", fmt.Errorf("unknown pulse step: %s", s)
	}
	return step, nil
}

// Window names an aggregation window. Only the 30-day window exists today;
// user_skill_agg keys on it so new windows are additive.
type Window string

const (
	// Window30d covers the trailing 30 days of session events.
	Window30d Window = "30d"
)

// Window30dLabel is the human label recorded in snapshot metadata.
const Window30dLabel = "last_30_days"

// ParseWindow validates a window name.
func ParseWindow(s string) (Window, error) {
	if Window(s) != Window30d {
		return "", fmt.Errorf("unknown window: %s", s)
	}
	return Window30d, nil
}

// MinScore and MaxScore bound the normalized score scale. Every stored score,
// component value, and readiness overall lives on this scale.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// ValidScore reports whether a score is on the normalized scale.
func ValidScore(score float64) bool {
	return score >= MinScore && score <= MaxScore
}
