package telescope

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Jitter produces the random draws used by the simulation: temperature drift,
// declination perturbation, and the initialization failure roll. All draws
// come from a single PCG source so a seeded Jitter replays identically.
type Jitter struct {
	temp    distuv.Normal
	dec     distuv.Normal
	percent distuv.Uniform
}

// NewJitter builds a Jitter seeded from the given value.
func NewJitter(seed uint64) *Jitter {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Jitter{
		temp:    distuv.Normal{Mu: 0, Sigma: 0.08, Src: src},
		dec:     distuv.Normal{Mu: 0, Sigma: 2e-8, Src: src},
		percent: distuv.Uniform{Min: 0, Max: 100, Src: src},
	}
}

// TemperatureStep returns one small temperature increment in °C.
func (j *Jitter) TemperatureStep() float64 {
	return j.temp.Rand()
}

// DecPerturbation returns one tiny declination wobble in radians.
func (j *Jitter) DecPerturbation() float64 {
	return j.dec.Rand()
}

// PercentRoll draws uniformly from [0, 100). The initialization activity
// fails a tick when the roll comes up below its failure threshold.
func (j *Jitter) PercentRoll() float64 {
	return j.percent.Rand()
}
