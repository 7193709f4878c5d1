package blink

import (
	"errors"
	"fmt"
)

// ErrInvalidSensitivity is returned for levels outside MinSensitivity..MaxSensitivity.
var ErrInvalidSensitivity = errors.New("invalid sensitivity level")

// Sensitivity levels. Higher levels use a lower quantile and fire more readily.
const (
	MinSensitivity     = 1
	MaxSensitivity     = 5
	DefaultSensitivity = 4
)

var sensitivityQuantiles = [MaxSensitivity]float64{0.99, 0.975, 0.96, 0.945, 0.93}

// QuantileFor returns the calibration quantile for a sensitivity level.
func QuantileFor(level int) (float64, error) {
	if level < MinSensitivity || level > MaxSensitivity {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSensitivity, level)
	}
	return sensitivityQuantiles[level-1], nil
}
