// Package convert maps payload transforms (right-handed, Z-up, degrees)
// into host conventions (Y flipped, radians, camera basis offset).
package convert

import (
	"github.com/df07/go-batch-renderer/pkg/core"
	"github.com/df07/go-batch-renderer/pkg/host"
	"github.com/df07/go-batch-renderer/pkg/scene"
)

const (
	// Camera basis realignment, in degrees. Empirical; must stay exact for visual parity.
	cameraPitchOffset = 90.0
	cameraYawOffset   = 270.0

	// Payload intensity that maps to 100 host energy units
	intensityCalibration = 90.0
	energyScale          = 100.0
)

// Position flips the Y axis
func Position(p core.Vec3) core.Vec3 {
	return core.NewVec3(p.X, -p.Y, p.Z)
}

// FlipObjectRotation negates the Y and Z rotations, in degrees. It is its own inverse.
func FlipObjectRotation(deg core.Vec3) core.Vec3 {
	return core.NewVec3(deg.X, -deg.Y, -deg.Z)
}

// ObjectRotation converts an object rotation to host radians
func ObjectRotation(deg core.Vec3) core.Vec3 {
	return core.RadiansVec(FlipObjectRotation(deg))
}

// CameraRotationDegrees realigns a camera rotation to the host camera basis:
// (rx, ry, rz) -> (ry + 90, -rx, 270 - rz)
func CameraRotationDegrees(deg core.Vec3) core.Vec3 {
	return core.NewVec3(deg.Y+cameraPitchOffset, -deg.X, cameraYawOffset-deg.Z)
}

// CameraRotation converts a camera rotation to host radians
func CameraRotation(deg core.Vec3) core.Vec3 {
	return core.RadiansVec(CameraRotationDegrees(deg))
}

// FOV converts a field of view in degrees to radians
func FOV(deg float64) float64 {
	return core.Radians(deg)
}

// LightEnergy rescales a payload light intensity to host energy
func LightEnergy(intensity float64) float64 {
	return (intensity / intensityCalibration) * energyScale
}

// Object converts an object transform; scale passes through
func Object(t scene.Transform) host.Placement {
	return host.Placement{
		Location: Position(t.Position),
		Rotation: ObjectRotation(t.Rotation),
		Scale:    t.Scale,
	}
}

// Camera converts a camera transform into a creation spec
func Camera(t scene.Transform) host.CameraSpec {
	return host.CameraSpec{
		Location: Position(t.Position),
		Rotation: CameraRotation(t.Rotation),
	}
}

// PointLight converts a light into a creation spec
func PointLight(l scene.Light) host.LightSpec {
	return host.LightSpec{
		Type:     "POINT",
		Radius:   l.Radius,
		Location: Position(l.Transform.Position),
	}
}
