package readiness

import (
	"time"

	"github.com/google/uuid"

	"pulse-analytics/pkg/domain"
)

// SkillAggregate is a rolling aggregate of one user's performance on one
// skill over a window. Recomputed periodically and superseded, not versioned.
type SkillAggregate struct {
	SkillTag    domain.SkillTag
	Window      domain.Window
	AvgScore    float64
	SampleSize  int
	LastUpdated time.Time
}

// Meta documents how a snapshot was computed so the formula can evolve
// without breaking historical rows.
type Meta struct {
	FormulaVersion string             `json:"formula_version"`
	WindowName     string             `json:"window_name"`
	WindowLabel    string             `json:"window_label"`
	Weights        map[string]float64 `json:"weights"`
	Source         string             `json:"source"`
}

// Snapshot is a point-in-time composite readiness measurement. Snapshots are
// append-only; history is the series.
type Snapshot struct {
	ID            uuid.UUID
	UserID        domain.UserID
	SnapshotAt    time.Time
	Overall       float64
	Technical     *float64
	Communication *float64
	Structure     *float64
	Behavioral    *float64
	Meta          Meta
}

// UserReadiness is the readiness view served over HTTP: the latest snapshot
// plus recent history, newest first.
type UserReadiness struct {
	UserID  domain.UserID
	Latest  *Snapshot
	History []Snapshot
}
