package triage

import (
	"time"

	"github.com/google/uuid"
)

// VitalSigns is the intake measurement set. BloodPressure keeps the
// "systolic/diastolic" string form nurses enter; scoring reads the
// systolic component.
type VitalSigns struct {
	Temperature      float64 `json:"temperature"`
	HeartRate        int     `json:"heart_rate"`
	BloodPressure    string  `json:"blood_pressure"`
	RespiratoryRate  int     `json:"respiratory_rate"`
	OxygenSaturation float64 `json:"oxygen_saturation"`
	Weight           float64 `json:"weight,omitempty"`
}

// Symptoms is the nurse-reported symptom set.
type Symptoms struct {
	PainLevel           int  `json:"pain_level"`
	DifficultyBreathing bool `json:"difficulty_breathing"`
	ChestPain           bool `json:"chest_pain"`
	AlteredMentalStatus bool `json:"altered_mental_status"`
}

// Assessment is a severity verdict, whether it came from the AI service or
// the rule-based scorer.
type Assessment struct {
	SeverityScore     float64  `json:"severity_score"`
	RecommendedAction string   `json:"recommended_action"`
	CriticalFlags     []string `json:"critical_flags"`
	// Source records who produced the verdict: "ai" or "rules".
	Source string `json:"source"`
}

// Record is the persisted triage audit row for a visit.
type Record struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	VisitID            uuid.UUID  `db:"visit_id" json:"visit_id"`
	Symptoms           string     `db:"symptoms" json:"symptoms"`
	Vitals             VitalSigns `db:"vitals_data" json:"vitals"`
	SeverityScore      float64    `db:"severity_score" json:"severity_score"`
	Recommendations    string     `db:"recommendations" json:"recommendations"`
	RequiresUrgentCare bool       `db:"requires_urgent_care" json:"requires_urgent_care"`
	CriticalFlags      []string   `db:"critical_flags" json:"critical_flags"`
	Source             string     `db:"source" json:"source"`
	RecordedAt         time.Time  `db:"recorded_at" json:"recorded_at"`
}

// Category is the clinical urgency band a severity score falls in.
type Category string

const (
	CategoryImmediate  Category = "immediate"
	CategoryEmergency  Category = "emergency"
	CategoryUrgent     Category = "urgent"
	CategoryLessUrgent Category = "less_urgent"
	CategoryNonUrgent  Category = "non_urgent"
)

// Categorize maps a severity score onto its urgency band.
func Categorize(score float64) Category {
	switch {
	case score >= 0.8:
		return CategoryImmediate
	case score >= 0.6:
		return CategoryEmergency
	case score >= 0.3:
		return CategoryUrgent
	case score >= 0.1:
		return CategoryLessUrgent
	default:
		return CategoryNonUrgent
	}
}
