package scene

import (
	"github.com/df07/go-batch-renderer/pkg/core"
)

// ModelExtension is the file extension of cached model files
const ModelExtension = ".fbx"

// Transform is a rigid+scale transform in the payload's coordinate system
// (right-handed, Z-up, rotations in degrees)
type Transform struct {
	Position core.Vec3
	Rotation core.Vec3 // Degrees
	Scale    core.Vec3
}

// Object is a model instance placed in the scene
type Object struct {
	Type      string
	MeshID    string // Cached model identifier, resolved to <cache>/<MeshID>.fbx
	Transform Transform
}

// Camera renders one output per instance
type Camera struct {
	Type      string
	FOV       float64 // Field of view in degrees
	Transform Transform
}

// Light is a point light
type Light struct {
	Type      string
	Intensity float64 // Payload units, rescaled before reaching the host
	Radius    float64
	Transform Transform
}

// Scene contains all the elements needed for assembling a render
type Scene struct {
	ID      string
	Objects []Object
	Cameras []Camera
	Lights  []Light
}

// Subject is the single model shown by the turntable renderer
type Subject struct {
	ID string // Names both the cached model file and the output folder
}

// ModelFile returns the cached model file name for the subject
func (s Subject) ModelFile() string {
	return s.ID + ModelExtension
}

// ModelFile returns the cached model file name for the object
func (o Object) ModelFile() string {
	return o.MeshID + ModelExtension
}

// MeshIDs returns the distinct model identifiers referenced by the scene, in first-use order
func (s *Scene) MeshIDs() []string {
	seen := make(map[string]bool, len(s.Objects))
	var ids []string
	for _, obj := range s.Objects {
		if !seen[obj.MeshID] {
			seen[obj.MeshID] = true
			ids = append(ids, obj.MeshID)
		}
	}
	return ids
}
