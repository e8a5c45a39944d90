package scoring

import (
	"math"

	"github.com/montanaflynn/stats"

	"interview-service/internal/models"
	"interview-service/internal/policy"
)

// Dimension names, in the fixed order used everywhere ties are broken.
const (
	DimTechnical      = "technical"
	DimDepth          = "depth"
	DimClarity        = "clarity"
	DimProblemSolving = "problem_solving"
	DimCommunication  = "communication"
)

// Dimensions is the canonical ordering. Strongest/weakest ties resolve to the
// first dimension in this order.
var Dimensions = []string{DimTechnical, DimDepth, DimClarity, DimProblemSolving, DimCommunication}

// weights per experience level. Each vector sums to 1.0: junior leans on
// technical correctness and clarity, mid balances the core three, senior
// leans on depth and problem solving.
var levelWeights = map[policy.Level]map[string]float64{
	policy.LevelJunior: {
		DimTechnical:      0.35,
		DimDepth:          0.10,
		DimClarity:        0.25,
		DimProblemSolving: 0.15,
		DimCommunication:  0.15,
	},
	policy.LevelMid: {
		DimTechnical:      0.25,
		DimDepth:          0.25,
		DimClarity:        0.10,
		DimProblemSolving: 0.25,
		DimCommunication:  0.15,
	},
	policy.LevelSenior: {
		DimTechnical:      0.15,
		DimDepth:          0.30,
		DimClarity:        0.10,
		DimProblemSolving: 0.30,
		DimCommunication:  0.15,
	},
}

// WeightsFor returns the weight vector for a level. Unknown levels use the
// junior vector, mirroring policy.ConfigFor.
func WeightsFor(level policy.Level) map[string]float64 {
	if w, ok := levelWeights[level]; ok {
		return w
	}
	return levelWeights[policy.LevelJunior]
}

func dimensionScore(e *models.Evaluation, dim string) float64 {
	switch dim {
	case DimTechnical:
		return e.Technical
	case DimDepth:
		return e.Depth
	case DimClarity:
		return e.Clarity
	case DimProblemSolving:
		return e.ProblemSolving
	case DimCommunication:
		return e.Communication
	}
	return 0
}

// Normalize clamps every sub-score into [1,10] and rounds it to 2 decimals,
// in place. Runs before weighting; the weighted sum is rounded again.
func Normalize(e *models.Evaluation) {
	e.Technical = round2(clamp10(e.Technical))
	e.Depth = round2(clamp10(e.Depth))
	e.Clarity = round2(clamp10(e.Clarity))
	e.ProblemSolving = round2(clamp10(e.ProblemSolving))
	e.Communication = round2(clamp10(e.Communication))
}

// WeightedOverall combines the five sub-scores with the level's weight
// vector and rounds the result to 2 decimals.
func WeightedOverall(e *models.Evaluation, level policy.Level) float64 {
	weights := WeightsFor(level)
	sum := 0.0
	for _, dim := range Dimensions {
		sum += dimensionScore(e, dim) * weights[dim]
	}
	return round2(sum)
}

// Aggregate recomputes the running snapshot from every evaluated entry. An
// empty input yields a zeroed snapshot with "N/A" dimension names.
func Aggregate(evals []models.Evaluation) models.AggregatedScores {
	if len(evals) == 0 {
		return models.AggregatedScores{Strongest: "N/A", Weakest: "N/A"}
	}

	means := make(map[string]float64, len(Dimensions))
	for _, dim := range Dimensions {
		values := make([]float64, 0, len(evals))
		for i := range evals {
			values = append(values, dimensionScore(&evals[i], dim))
		}
		mean, _ := stats.Mean(values)
		means[dim] = round2(mean)
	}

	overalls := make([]float64, 0, len(evals))
	for i := range evals {
		overalls = append(overalls, evals[i].Overall)
	}
	overallMean, _ := stats.Mean(overalls)

	strongest, weakest := Dimensions[0], Dimensions[0]
	for _, dim := range Dimensions[1:] {
		if means[dim] > means[strongest] {
			strongest = dim
		}
		if means[dim] < means[weakest] {
			weakest = dim
		}
	}

	return models.AggregatedScores{
		Technical:      means[DimTechnical],
		Depth:          means[DimDepth],
		Clarity:        means[DimClarity],
		ProblemSolving: means[DimProblemSolving],
		Communication:  means[DimCommunication],
		Overall:        round2(overallMean),
		Strongest:      strongest,
		Weakest:        weakest,
	}
}

// WeakestDimension returns the single lowest-scoring dimension of one
// evaluation, first-in-order on ties.
func WeakestDimension(e *models.Evaluation) string {
	weakest := Dimensions[0]
	for _, dim := range Dimensions[1:] {
		if dimensionScore(e, dim) < dimensionScore(e, weakest) {
			weakest = dim
		}
	}
	return weakest
}

func clamp10(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
