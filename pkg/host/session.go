// Package host defines the contract with the external 3D application that
// owns the scene graph, the importer and the renderer.
//
// A Session stands for exclusive ownership of the host's single active
// scene. Creation calls return no handle; callers discover the object they
// just created with Create.
package host

import (
	"context"
	"errors"

	"github.com/df07/go-batch-renderer/pkg/core"
)

var (
	// ErrHost is returned when the host cannot be reached or replies out of protocol
	ErrHost = errors.New("host error")
	// ErrImport is returned when the host cannot import a model file
	ErrImport = errors.New("import failure")
	// ErrRender is returned when a render call fails
	ErrRender = errors.New("render failure")
)

// Handle names an object in the host scene
type Handle string

// Kind is the host object type
type Kind string

const (
	KindMesh   Kind = "MESH"
	KindCamera Kind = "CAMERA"
	KindLight  Kind = "LIGHT"
	KindEmpty  Kind = "EMPTY"
)

// ObjectInfo describes one object in the host scene
type ObjectInfo struct {
	Name Handle `json:"name"`
	Kind Kind   `json:"kind"`
}

// Placement is a transform in host conventions (rotations in radians)
type Placement struct {
	Location core.Vec3
	Rotation core.Vec3
	Scale    core.Vec3
}

// UnitSettings controls the host scene's unit system
type UnitSettings struct {
	System      string  `json:"system"`       // METRIC, IMPERIAL or NONE
	ScaleLength float64 `json:"scale_length"` // Host units per meter
}

// ImportOptions controls model import axis mapping
type ImportOptions struct {
	AxisForward string `json:"axis_forward"`
	AxisUp      string `json:"axis_up"`
}

// CameraSpec describes a camera to create
type CameraSpec struct {
	Location core.Vec3
	Rotation core.Vec3 // Radians
}

// LightSpec describes a light to create
type LightSpec struct {
	Type     string // POINT or SUN
	Radius   float64
	Location core.Vec3
}

// LightSettings adjusts an existing light
type LightSettings struct {
	Energy                   float64 `json:"energy"`
	ShadowCascadeMaxDistance float64 `json:"shadow_cascade_max_distance,omitempty"`
}

// RenderSettings configures the render engine
type RenderSettings struct {
	Engine            string  `json:"engine" yaml:"engine"`
	ResolutionX       int     `json:"resolution_x" yaml:"resolution_x"`
	ResolutionY       int     `json:"resolution_y" yaml:"resolution_y"`
	Samples           int     `json:"samples" yaml:"samples"`
	UseGTAO           bool    `json:"use_gtao" yaml:"use_gtao"`
	GTAODistance      float64 `json:"gtao_distance" yaml:"-"`
	ShadowCascadeSize string  `json:"shadow_cascade_size" yaml:"shadow_cascade_size"`
	SoftShadows       bool    `json:"soft_shadows" yaml:"soft_shadows"`
}

// RenderRequest asks the host to render the active camera
type RenderRequest struct {
	Output    string // Output path stem; the host appends frame numbers and extension
	Animation bool   // Render the whole animation range instead of a single still
}

// Session is the host's object, camera, light and render API
type Session interface {
	// SceneKey returns the identifier of the active scene
	SceneKey(ctx context.Context) (string, error)
	// Objects lists every object in the scene in creation order
	Objects(ctx context.Context) ([]ObjectInfo, error)
	DeleteAll(ctx context.Context) error
	SetUnits(ctx context.Context, units UnitSettings) error

	ImportModel(ctx context.Context, path string, opts ImportOptions) error
	AddCamera(ctx context.Context, spec CameraSpec) error
	AddLight(ctx context.Context, spec LightSpec) error
	AddEmpty(ctx context.Context, location core.Vec3) error
	AddPlane(ctx context.Context, size float64, location core.Vec3) error

	SetPlacement(ctx context.Context, h Handle, p Placement) error
	SetLocation(ctx context.Context, h Handle, location core.Vec3) error
	SetRotation(ctx context.Context, h Handle, rotation core.Vec3) error
	SetScale(ctx context.Context, h Handle, scale core.Vec3) error
	ApplyTransform(ctx context.Context, h Handle) error
	ClearAnimation(ctx context.Context, h Handle) error
	SetParent(ctx context.Context, child, parent Handle) error
	SetCameraFOV(ctx context.Context, h Handle, radians float64) error
	SetLight(ctx context.Context, h Handle, settings LightSettings) error
	SetMaterial(ctx context.Context, h Handle, material string) error
	HasMaterial(ctx context.Context, material string) (bool, error)

	// Dimensions returns the world-space bounding box size of an object
	Dimensions(ctx context.Context, h Handle) (core.Vec3, error)
	// BoundsCenter returns the world-space centre of an object's bounding box
	BoundsCenter(ctx context.Context, h Handle) (core.Vec3, error)

	ConfigureRender(ctx context.Context, settings RenderSettings) error
	SetActiveCamera(ctx context.Context, h Handle) error
	Render(ctx context.Context, req RenderRequest) error

	// Quit terminates the host application
	Quit(ctx context.Context) error
}

// Cameras returns the handles of every camera in the scene, in creation order
func Cameras(ctx context.Context, s Session) ([]Handle, error) {
	objects, err := s.Objects(ctx)
	if err != nil {
		return nil, err
	}
	var cameras []Handle
	for _, obj := range objects {
		if obj.Kind == KindCamera {
			cameras = append(cameras, obj.Name)
		}
	}
	return cameras, nil
}
