package triage

import (
	"strconv"
	"strings"
)

// Vital-sign and symptom weights. Vitals and symptoms each contribute half of
// the combined score.
const (
	weightTemperature   = 0.2
	weightHeartRate     = 0.2
	weightBloodPressure = 0.25
	weightRespiratory   = 0.15
	weightOxygen        = 0.2

	weightPain          = 0.3
	weightBreathing     = 0.3
	weightChestPain     = 0.25
	weightMentalStatus  = 0.15
)

// VulnerabilityBoosts are the additive priority boosts per registered
// vulnerability factor.
var VulnerabilityBoosts = map[string]float64{
	"elderly":           0.15,
	"wheelchair_user":   0.10,
	"urgent_referral":   0.20,
	"chronic_condition": 0.10,
	"immunocompromised": 0.12,
}

// Score computes a rule-based severity score from vitals, symptoms, and
// vulnerability factors. It is the offline scorer: deterministic, no network,
// always in [0,1].
func Score(vitals VitalSigns, symptoms Symptoms, vulnerabilityFactors []string) float64 {
	score := scoreVitals(vitals)*0.5 + scoreSymptoms(symptoms)*0.5

	for _, f := range vulnerabilityFactors {
		score += VulnerabilityBoosts[f]
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func scoreVitals(v VitalSigns) float64 {
	var score float64

	switch {
	case v.Temperature >= 39 || (v.Temperature > 0 && v.Temperature <= 35):
		score += 1 * weightTemperature
	case v.Temperature >= 38 || (v.Temperature > 0 && v.Temperature <= 36):
		score += 0.5 * weightTemperature
	}

	switch {
	case v.HeartRate >= 130 || (v.HeartRate > 0 && v.HeartRate <= 50):
		score += 1 * weightHeartRate
	case v.HeartRate >= 110 || (v.HeartRate > 0 && v.HeartRate <= 60):
		score += 0.7 * weightHeartRate
	case v.HeartRate >= 100 || (v.HeartRate > 0 && v.HeartRate <= 70):
		score += 0.3 * weightHeartRate
	}

	systolic := SystolicBP(v.BloodPressure)
	switch {
	case systolic >= 180 || (systolic > 0 && systolic <= 90):
		score += 1 * weightBloodPressure
	case systolic >= 160 || (systolic > 0 && systolic <= 100):
		score += 0.7 * weightBloodPressure
	case systolic >= 140 || (systolic > 0 && systolic <= 110):
		score += 0.3 * weightBloodPressure
	}

	switch {
	case v.RespiratoryRate >= 30 || (v.RespiratoryRate > 0 && v.RespiratoryRate <= 8):
		score += 1 * weightRespiratory
	case v.RespiratoryRate >= 25 || (v.RespiratoryRate > 0 && v.RespiratoryRate <= 10):
		score += 0.7 * weightRespiratory
	case v.RespiratoryRate >= 20 || (v.RespiratoryRate > 0 && v.RespiratoryRate <= 12):
		score += 0.3 * weightRespiratory
	}

	switch {
	case v.OxygenSaturation > 0 && v.OxygenSaturation < 90:
		score += 1 * weightOxygen
	case v.OxygenSaturation > 0 && v.OxygenSaturation < 94:
		score += 0.5 * weightOxygen
	}

	return score
}

func scoreSymptoms(s Symptoms) float64 {
	var score float64

	pain := s.PainLevel
	if pain < 0 {
		pain = 0
	}
	if pain > 10 {
		pain = 10
	}
	score += float64(pain) / 10 * weightPain

	if s.DifficultyBreathing {
		score += weightBreathing
	}
	if s.ChestPain {
		score += weightChestPain
	}
	if s.AlteredMentalStatus {
		score += weightMentalStatus
	}
	return score
}

// SystolicBP parses the systolic component out of a "120/80" reading.
// Malformed input yields 0, which scores as not-measured.
func SystolicBP(bp string) int {
	head, _, _ := strings.Cut(bp, "/")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// RuleAssessment runs the offline scorer and wraps the result as an
// Assessment, with critical flags for the red-flag symptoms.
func RuleAssessment(vitals VitalSigns, symptoms Symptoms, vulnerabilityFactors []string) *Assessment {
	score := Score(vitals, symptoms, vulnerabilityFactors)

	var flags []string
	if symptoms.ChestPain {
		flags = append(flags, "chest_pain")
	}
	if symptoms.DifficultyBreathing {
		flags = append(flags, "difficulty_breathing")
	}
	if symptoms.AlteredMentalStatus {
		flags = append(flags, "altered_mental_status")
	}
	if v := vitals.OxygenSaturation; v > 0 && v < 90 {
		flags = append(flags, "critical_oxygen_saturation")
	}

	action := "Routine care advised"
	switch Categorize(score) {
	case CategoryImmediate:
		action = "Immediate medical attention required"
	case CategoryEmergency:
		action = "See within 30 minutes"
	case CategoryUrgent:
		action = "See within 1 hour"
	}

	return &Assessment{
		SeverityScore:     score,
		RecommendedAction: action,
		CriticalFlags:     flags,
		Source:            "rules",
	}
}
