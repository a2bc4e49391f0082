package host

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/df07/go-batch-renderer/pkg/core"
)

// Call is one recorded Session operation
type Call struct {
	Op     string
	Target Handle
	Detail string
}

func (c Call) String() string {
	switch {
	case c.Target == "" && c.Detail == "":
		return c.Op
	case c.Target == "":
		return fmt.Sprintf("%s %s", c.Op, c.Detail)
	case c.Detail == "":
		return fmt.Sprintf("%s %s", c.Op, c.Target)
	default:
		return fmt.Sprintf("%s %s %s", c.Op, c.Target, c.Detail)
	}
}

// RenderRecord captures the scene state at the time of a render call
type RenderRecord struct {
	Camera     Handle
	Output     string
	Animation  bool
	Placements map[Handle]Placement
}

// RecordedObject is the recorder's view of a host object
type RecordedObject struct {
	Info      ObjectInfo
	Placement Placement
	Parent    Handle
	Material  string
	FOV       float64
	Light     LightSettings
	Radius    float64
}

// Recorder is an in-memory Session. It keeps a minimal scene graph, records
// every call, and never touches the filesystem. Used for dry runs and tests.
type Recorder struct {
	Key string // Scene key reported by SceneKey

	// ModelDimensions maps a model file stem to the size reported for its imported object
	ModelDimensions map[string]core.Vec3
	// Materials lists the material names the host knows about
	Materials map[string]bool
	// ImportErr, when set, decides whether an import fails
	ImportErr func(path string) error
	// RenderErr, when set, decides whether a render fails
	RenderErr func(req RenderRequest) error

	Calls   []Call
	Renders []RenderRecord
	Quitted bool

	objects      []*RecordedObject
	names        map[string]int
	activeCamera Handle
	dims         map[Handle]core.Vec3
}

// NewRecorder creates an empty recorder with the default scene key
func NewRecorder() *Recorder {
	return &Recorder{
		Key:             "Scene",
		ModelDimensions: map[string]core.Vec3{},
		Materials:       map[string]bool{},
		names:           map[string]int{},
		dims:            map[Handle]core.Vec3{},
	}
}

// Seed adds a pre-existing object, as found in a template scene
func (r *Recorder) Seed(base string, kind Kind) Handle {
	return r.add(base, kind).Info.Name
}

// Object returns the recorded state of an object
func (r *Recorder) Object(h Handle) (*RecordedObject, bool) {
	for _, obj := range r.objects {
		if obj.Info.Name == h {
			return obj, true
		}
	}
	return nil, false
}

// Outputs returns the output paths of every render call, in order
func (r *Recorder) Outputs() []string {
	outputs := make([]string, len(r.Renders))
	for i, rec := range r.Renders {
		outputs[i] = rec.Output
	}
	return outputs
}

func (r *Recorder) record(op string, target Handle, format string, args ...any) {
	r.Calls = append(r.Calls, Call{Op: op, Target: target, Detail: fmt.Sprintf(format, args...)})
}

func (r *Recorder) add(base string, kind Kind) *RecordedObject {
	name := base
	if n := r.names[base]; n > 0 {
		name = fmt.Sprintf("%s.%03d", base, n)
	}
	r.names[base]++
	obj := &RecordedObject{
		Info:      ObjectInfo{Name: Handle(name), Kind: kind},
		Placement: Placement{Scale: core.NewVec3(1, 1, 1)},
	}
	r.objects = append(r.objects, obj)
	return obj
}

func (r *Recorder) lookup(h Handle) (*RecordedObject, error) {
	if obj, ok := r.Object(h); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: no object named %q", ErrHost, h)
}

func (r *Recorder) SceneKey(ctx context.Context) (string, error) {
	return r.Key, nil
}

func (r *Recorder) Objects(ctx context.Context) ([]ObjectInfo, error) {
	infos := make([]ObjectInfo, len(r.objects))
	for i, obj := range r.objects {
		infos[i] = obj.Info
	}
	return infos, nil
}

func (r *Recorder) DeleteAll(ctx context.Context) error {
	r.record("delete_all", "", "")
	r.objects = nil
	r.names = map[string]int{}
	r.activeCamera = ""
	return nil
}

func (r *Recorder) SetUnits(ctx context.Context, units UnitSettings) error {
	r.record("set_units", "", "%s %g", units.System, units.ScaleLength)
	return nil
}

func (r *Recorder) ImportModel(ctx context.Context, path string, opts ImportOptions) error {
	r.record("import_model", "", "%s forward=%s up=%s", path, opts.AxisForward, opts.AxisUp)
	if r.ImportErr != nil {
		if err := r.ImportErr(path); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrImport, path, err)
		}
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	obj := r.add(stem, KindMesh)
	dims, ok := r.ModelDimensions[stem]
	if !ok {
		dims = core.NewVec3(1, 1, 1)
	}
	r.dims[obj.Info.Name] = dims
	return nil
}

func (r *Recorder) AddCamera(ctx context.Context, spec CameraSpec) error {
	r.record("add_camera", "", "at %v rot %v", spec.Location, spec.Rotation)
	obj := r.add("Camera", KindCamera)
	obj.Placement.Location = spec.Location
	obj.Placement.Rotation = spec.Rotation
	return nil
}

func (r *Recorder) AddLight(ctx context.Context, spec LightSpec) error {
	r.record("add_light", "", "%s radius %g at %v", spec.Type, spec.Radius, spec.Location)
	base := "Point"
	if spec.Type == "SUN" {
		base = "Sun"
	}
	obj := r.add(base, KindLight)
	obj.Placement.Location = spec.Location
	obj.Radius = spec.Radius
	return nil
}

func (r *Recorder) AddEmpty(ctx context.Context, location core.Vec3) error {
	r.record("add_empty", "", "at %v", location)
	r.add("Empty", KindEmpty).Placement.Location = location
	return nil
}

func (r *Recorder) AddPlane(ctx context.Context, size float64, location core.Vec3) error {
	r.record("add_plane", "", "size %g at %v", size, location)
	obj := r.add("Plane", KindMesh)
	obj.Placement.Location = location
	r.dims[obj.Info.Name] = core.NewVec3(size, size, 0)
	return nil
}

func (r *Recorder) SetPlacement(ctx context.Context, h Handle, p Placement) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.record("set_placement", h, "loc %v rot %v scale %v", p.Location, p.Rotation, p.Scale)
	obj.Placement = p
	return nil
}

func (r *Recorder) SetLocation(ctx context.Context, h Handle, location core.Vec3) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.record("set_location", h, "%v", location)
	obj.Placement.Location = location
	return nil
}

func (r *Recorder) SetRotation(ctx context.Context, h Handle, rotation core.Vec3) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.record("set_rotation", h, "%v", rotation)
	obj.Placement.Rotation = rotation
	return nil
}

func (r *Recorder) SetScale(ctx context.Context, h Handle, scale core.Vec3) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	r.record("set_scale", h, "%v", scale)
	obj.Placement.Scale = scale
	return nil
}

func (r *Recorder) ApplyTransform(ctx context.Context, h Handle) error {
	if _, err := r.lookup(h); err != nil {
		return err
	}
	r.record("apply_transform", h, "")
	return nil
}

func (r *Recorder) ClearAnimation(ctx context.Context, h Handle) error {
	if _, err := r.lookup(h); err != nil {
		return err
	}
	r.record("clear_animation", h, "")
	return nil
}

func (r *Recorder) SetParent(ctx context.Context, child, parent Handle) error {
	obj, err := r.lookup(child)
	if err != nil {
		return err
	}
	if _, err := r.lookup(parent); err != nil {
		return err
	}
	r.record("set_parent", child, "%s", parent)
	obj.Parent = parent
	return nil
}

func (r *Recorder) SetCameraFOV(ctx context.Context, h Handle, radians float64) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	if obj.Info.Kind != KindCamera {
		return fmt.Errorf("%w: %q is not a camera", ErrHost, h)
	}
	r.record("set_camera_fov", h, "%g", radians)
	obj.FOV = radians
	return nil
}

func (r *Recorder) SetLight(ctx context.Context, h Handle, settings LightSettings) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	if obj.Info.Kind != KindLight {
		return fmt.Errorf("%w: %q is not a light", ErrHost, h)
	}
	r.record("set_light", h, "energy %g", settings.Energy)
	obj.Light = settings
	return nil
}

func (r *Recorder) SetMaterial(ctx context.Context, h Handle, material string) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	if !r.Materials[material] {
		return fmt.Errorf("%w: no material named %q", ErrHost, material)
	}
	r.record("set_material", h, "%s", material)
	obj.Material = material
	return nil
}

func (r *Recorder) HasMaterial(ctx context.Context, material string) (bool, error) {
	return r.Materials[material], nil
}

func (r *Recorder) Dimensions(ctx context.Context, h Handle) (core.Vec3, error) {
	obj, err := r.lookup(h)
	if err != nil {
		return core.Vec3{}, err
	}
	dims, ok := r.dims[h]
	if !ok {
		return core.Vec3{}, nil
	}
	return dims.MultiplyVec(obj.Placement.Scale), nil
}

func (r *Recorder) BoundsCenter(ctx context.Context, h Handle) (core.Vec3, error) {
	obj, err := r.lookup(h)
	if err != nil {
		return core.Vec3{}, err
	}
	dims, err := r.Dimensions(ctx, h)
	if err != nil {
		return core.Vec3{}, err
	}
	return obj.Placement.Location.Add(core.NewVec3(0, 0, dims.Z/2)), nil
}

func (r *Recorder) ConfigureRender(ctx context.Context, settings RenderSettings) error {
	r.record("configure_render", "", "%s %dx%d samples %d", settings.Engine,
		settings.ResolutionX, settings.ResolutionY, settings.Samples)
	return nil
}

func (r *Recorder) SetActiveCamera(ctx context.Context, h Handle) error {
	obj, err := r.lookup(h)
	if err != nil {
		return err
	}
	if obj.Info.Kind != KindCamera {
		return fmt.Errorf("%w: %q is not a camera", ErrHost, h)
	}
	r.record("set_active_camera", h, "")
	r.activeCamera = h
	return nil
}

func (r *Recorder) Render(ctx context.Context, req RenderRequest) error {
	r.record("render", r.activeCamera, "%s animation=%t", req.Output, req.Animation)
	if r.activeCamera == "" {
		return fmt.Errorf("%w: no active camera", ErrRender)
	}
	if r.RenderErr != nil {
		if err := r.RenderErr(req); err != nil {
			return fmt.Errorf("%w: %v", ErrRender, err)
		}
	}
	placements := make(map[Handle]Placement, len(r.objects))
	for _, obj := range r.objects {
		placements[obj.Info.Name] = obj.Placement
	}
	r.Renders = append(r.Renders, RenderRecord{
		Camera:     r.activeCamera,
		Output:     req.Output,
		Animation:  req.Animation,
		Placements: placements,
	})
	return nil
}

func (r *Recorder) Quit(ctx context.Context) error {
	r.record("quit", "", "")
	r.Quitted = true
	return nil
}
