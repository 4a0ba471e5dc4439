// Package sizer implements the Sizer component: per-level size ladders
// under fixed, percentage, and tiered quantity modes.
package sizer

import (
	"math"

	"github.com/nkassim/perpmm/internal/config"
)

// Sizer implements the Sizer component (C4).
type Sizer struct {
	cfg config.Config
}

// New creates a Sizer bound to the given root config.
func New(cfg config.Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Sizes returns an ordered list of cfg.MaxLevels sizes for the given
// available collateral, per spec.md §4.4. Returns an empty list when
// available is zero; quoting is suppressed for this event.
func (s *Sizer) Sizes(available float64) []float64 {
	if available == 0 {
		return nil
	}

	levels := make([]float64, s.cfg.MaxLevels)
	switch s.cfg.QuantityMode {
	case config.QuantityModeFixed:
		for i := range levels {
			levels[i] = s.cfg.FixedSize
		}
	case config.QuantityModePercentage:
		for i := range levels {
			levels[i] = available * s.cfg.PercentPerLevel
		}
	case config.QuantityModeTiered:
		for i := range levels {
			var mult float64
			if i < len(s.cfg.TieredMultipliers) {
				mult = s.cfg.TieredMultipliers[i]
			}
			levels[i] = available * s.cfg.Risk.MaxExposurePerMarket * mult
		}
	}
	return levels
}

// RoundSize returns minSize when size is below it; otherwise it floors size
// to a multiple of stepSize, which can land below minSize when stepSize is
// larger than minSize.
func RoundSize(size, minSize, stepSize float64) float64 {
	if stepSize == 0 {
		stepSize = 0.01
	}
	if size < minSize {
		return minSize
	}
	return math.Floor(size/stepSize) * stepSize
}

// ValidateSizes checks that the total notional of levels does not exceed
// available·risk.maxExposurePerSide. Quoting is suppressed for this event
// when it returns false.
func (s *Sizer) ValidateSizes(levels []float64, available, mid float64) bool {
	var notional float64
	for _, size := range levels {
		notional += size * mid
	}
	return notional <= available*s.cfg.Risk.MaxExposurePerSide
}
