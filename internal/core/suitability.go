package core

import "math"

var surfacePenalty = map[string]float64{
	"asphalt":   0,
	"paved":     0,
	"concrete":  -5,
	"compacted": -10,
	"gravel":    -15,
	"unpaved":   -20,
	"dirt":      -25,
	"sand":      -30,
	"unknown":   -5,
	"":          -5,
}

// otherSurfacePenalty applies to surfaces missing from the table.
const otherSurfacePenalty = -10

var roadTypeBonus = map[string]float64{
	"cycleway":     25,
	"path":         15,
	"residential":  10,
	"tertiary":     5,
	"secondary":    0,
	"unclassified": -5,
	"service":      -5,
	"primary":      -10,
	"track":        -10,
}

// SuitabilityScore rates a road for cycling on a 0-100 scale. Gradients are
// signed percent grades, so only climbs are penalised.
func SuitabilityScore(maxGradient, avgGradient float64, surface, roadType string) float64 {
	score := 100.0

	switch {
	case maxGradient > 20:
		score -= 40
	case maxGradient > 15:
		score -= 25
	case maxGradient > 10:
		score -= 15
	case maxGradient > 6:
		score -= 5
	}

	switch {
	case avgGradient > 8:
		score -= 20
	case avgGradient > 5:
		score -= 10
	}

	if p, ok := surfacePenalty[surface]; ok {
		score += p
	} else {
		score += otherSurfacePenalty
	}
	score += roadTypeBonus[roadType]

	return math.Max(0, math.Min(100, score))
}
