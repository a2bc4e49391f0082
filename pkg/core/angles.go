package core

import "math"

// DegreesToRadians is the exact degree to radian factor (π/180)
const DegreesToRadians = math.Pi / 180

// Radians converts an angle in degrees to radians
func Radians(degrees float64) float64 {
	return degrees * DegreesToRadians
}

// Degrees converts an angle in radians to degrees
func Degrees(radians float64) float64 {
	return radians / DegreesToRadians
}

// RadiansVec converts every component of a degree vector to radians
func RadiansVec(degrees Vec3) Vec3 {
	return degrees.Multiply(DegreesToRadians)
}
