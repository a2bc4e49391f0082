package convert

import (
	"fmt"

	"github.com/df07/go-batch-renderer/pkg/core"
)

// TurntableAngle returns the absolute rotation, in degrees, of step out of steps
func TurntableAngle(step, steps int) float64 {
	return float64(step) * (360.0 / float64(steps))
}

// TurntableAngles returns the rotation for every step: 0, 360/N, ..., (N-1)*360/N
func TurntableAngles(steps int) ([]float64, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("turntable steps must be positive, got %d", steps)
	}
	angles := make([]float64, steps)
	for i := range angles {
		angles[i] = TurntableAngle(i, steps)
	}
	return angles, nil
}

// TurntableRotation is the host rotation for a step: a spin about the vertical axis only
func TurntableRotation(step, steps int) core.Vec3 {
	return core.NewVec3(0, 0, core.Radians(TurntableAngle(step, steps)))
}
