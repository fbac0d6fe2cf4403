// Package pricing implements the difficulty-scaled price perturbation
// generator. Each task draws its price delta exactly once, at creation or
// difficulty-edit time; completion toggles reuse the frozen delta.
package pricing

import (
	"math"
	"math/rand"
	"time"

	"habitstock/internal/errors"
	"habitstock/internal/models"
	"habitstock/pkg/utils"
)

// distribution holds the per-task growth rate parameters for a difficulty.
type distribution struct {
	Mean   float64
	StdDev float64
}

var distributions = map[models.Difficulty]distribution{
	models.DifficultyEasy:    {Mean: 0.002, StdDev: 0.001},
	models.DifficultyMedium:  {Mean: 0.003, StdDev: 0.0015},
	models.DifficultyHard:    {Mean: 0.004, StdDev: 0.002},
	models.DifficultyExtreme: {Mean: 0.005, StdDev: 0.003},
}

// Distribution returns the (mean, stddev) growth rate pair for a difficulty.
func Distribution(d models.Difficulty) (mean, stddev float64, err error) {
	dist, ok := distributions[d]
	if !ok {
		return 0, 0, errors.ErrUnknownDifficulty
	}
	return dist.Mean, dist.StdDev, nil
}

// Perturbation is one drawn price effect. PriceChange is the absolute
// currency delta rounded to one decimal; Percent is back-derived from the
// rounded amount so both displayed numbers stay mutually consistent.
type Perturbation struct {
	PriceChange float64
	Percent     float64
}

// Generator draws bounded random price increments from difficulty-scaled
// normal distributions. Draws are always non-negative: tasks only ever push
// the price up when completed.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator seeded from the current time.
func NewGenerator() *Generator {
	return NewGeneratorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewGeneratorWithRand creates a generator with an injected random source.
func NewGeneratorWithRand(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate draws one perturbation for the given difficulty against the
// user's current price. Pure apart from the random draw; no side effects.
func (g *Generator) Generate(d models.Difficulty, currentPrice float64) (Perturbation, error) {
	dist, ok := distributions[d]
	if !ok {
		return Perturbation{}, errors.ErrUnknownDifficulty
	}
	if currentPrice <= 0 {
		return Perturbation{}, errors.ErrInvalidPrice
	}

	rate := math.Abs(g.rng.NormFloat64()*dist.StdDev + dist.Mean)
	amount := utils.Round1(currentPrice * rate)

	return Perturbation{
		PriceChange: amount,
		Percent:     amount / currentPrice,
	}, nil
}
