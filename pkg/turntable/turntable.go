// Package turntable renders a single cached model on a fixed studio rig:
// a camera orbiting the model's bounds centre, a shadow-catching ground
// plane and a sun light.
package turntable

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/core"
	"github.com/df07/go-batch-renderer/pkg/host"
	"github.com/df07/go-batch-renderer/pkg/payload"
	"github.com/df07/go-batch-renderer/pkg/renderer"
	"github.com/df07/go-batch-renderer/pkg/scene"
)

// ModelResolver maps a model id to a local file
type ModelResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Rig holds the handles of the objects placed around the subject
type Rig struct {
	Subject host.Handle
	Camera  host.Handle
	Pivot   host.Handle
	Ground  host.Handle
	Sun     host.Handle
}

// Renderer drives one host session through a turntable run
type Renderer struct {
	session  host.Session
	models   ModelResolver
	settings config.TurntableSettings
	axes     host.ImportOptions
	logger   *slog.Logger
}

// New creates a turntable renderer
func New(session host.Session, models ModelResolver, settings config.TurntableSettings, axes host.ImportOptions, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{session: session, models: models, settings: settings, axes: axes, logger: logger}
}

// Run imports the subject, builds the rig and renders a still or a turntable below renderRoot
func (r *Renderer) Run(ctx context.Context, subject *scene.Subject, flags payload.TurntableFlags, renderRoot string) (*renderer.RenderStats, error) {
	rig, err := r.Build(ctx, subject, flags.Is360)
	if err != nil {
		return nil, err
	}

	seq := renderer.NewSequencer(r.session, renderRoot, r.logger)
	if flags.Is360 {
		return seq.RenderTurntable(ctx, subject.ID, rig.Camera, rig.Subject, flags.Steps)
	}
	return seq.RenderStill(ctx, subject.ID, rig.Camera)
}

// Build clears the host scene, imports the subject at the origin and places the rig
func (r *Renderer) Build(ctx context.Context, subject *scene.Subject, is360 bool) (*Rig, error) {
	s := r.session
	cfg := r.settings

	if err := s.DeleteAll(ctx); err != nil {
		return nil, fmt.Errorf("clearing scene: %w", err)
	}
	if err := s.SetUnits(ctx, host.UnitSettings{System: "METRIC", ScaleLength: cfg.UnitScale}); err != nil {
		return nil, fmt.Errorf("setting units: %w", err)
	}

	path, err := r.models.Resolve(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	rig := &Rig{}
	rig.Subject, err = host.Create(ctx, s, func() error {
		return s.ImportModel(ctx, path, r.axes)
	})
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", subject.ID, err)
	}
	if err := s.ApplyTransform(ctx, rig.Subject); err != nil {
		return nil, err
	}
	origin := host.Placement{Scale: core.NewVec3(1, 1, 1)}
	if err := s.SetPlacement(ctx, rig.Subject, origin); err != nil {
		return nil, err
	}
	if err := s.ClearAnimation(ctx, rig.Subject); err != nil {
		return nil, err
	}

	dims, err := s.Dimensions(ctx, rig.Subject)
	if err != nil {
		return nil, err
	}
	center, err := s.BoundsCenter(ctx, rig.Subject)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("subject imported", "handle", rig.Subject, "dimensions", dims, "center", center)

	render := cfg.Render
	render.GTAODistance = dims.X * cfg.GTAOFactor
	if err := s.ConfigureRender(ctx, render); err != nil {
		return nil, fmt.Errorf("configuring render: %w", err)
	}

	if err := r.addCamera(ctx, rig, dims, center, is360); err != nil {
		return nil, err
	}
	if err := r.addGround(ctx, rig, dims); err != nil {
		return nil, err
	}
	if err := r.addSun(ctx, rig, dims); err != nil {
		return nil, err
	}
	return rig, nil
}

// addCamera parents a camera to a pivot empty at the subject's bounds centre.
// Rotating the pivot orbits the camera; its scale stretches the orbit vertically.
func (r *Renderer) addCamera(ctx context.Context, rig *Rig, dims, center core.Vec3, is360 bool) error {
	s := r.session
	cfg := r.settings
	var err error

	rig.Camera, err = host.Create(ctx, s, func() error {
		return s.AddCamera(ctx, host.CameraSpec{})
	})
	if err != nil {
		return fmt.Errorf("adding camera: %w", err)
	}
	rig.Pivot, err = host.Create(ctx, s, func() error {
		return s.AddEmpty(ctx, center)
	})
	if err != nil {
		return fmt.Errorf("adding camera pivot: %w", err)
	}
	if err := s.SetParent(ctx, rig.Camera, rig.Pivot); err != nil {
		return err
	}

	yaw := 0.0
	if !is360 {
		yaw = cfg.StillYaw
	}
	pivot := host.Placement{
		Location: center,
		Rotation: core.RadiansVec(core.NewVec3(cfg.PivotPitch, 0, yaw)),
		Scale:    core.NewVec3(cfg.PivotScale[0], cfg.PivotScale[1], cfg.PivotScale[2]),
	}
	if err := s.SetPlacement(ctx, rig.Pivot, pivot); err != nil {
		return err
	}
	return s.SetLocation(ctx, rig.Camera, core.NewVec3(0, 0, dims.Z))
}

// addGround places a shadow-catching plane sized to the subject's footprint
func (r *Renderer) addGround(ctx context.Context, rig *Rig, dims core.Vec3) error {
	s := r.session
	cfg := r.settings
	var err error

	rig.Ground, err = host.Create(ctx, s, func() error {
		return s.AddPlane(ctx, cfg.GroundPlaneSize, core.Vec3{})
	})
	if err != nil {
		return fmt.Errorf("adding ground plane: %w", err)
	}
	scale := core.NewVec3(1+dims.X*100, 1+dims.Y*100, 1)
	if err := s.SetScale(ctx, rig.Ground, scale); err != nil {
		return err
	}

	if cfg.ShadowCatcher == "" {
		return nil
	}
	ok, err := s.HasMaterial(ctx, cfg.ShadowCatcher)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Warn("shadow catcher material not found, ground plane left untextured", "material", cfg.ShadowCatcher)
		return nil
	}
	return s.SetMaterial(ctx, rig.Ground, cfg.ShadowCatcher)
}

func (r *Renderer) addSun(ctx context.Context, rig *Rig, dims core.Vec3) error {
	s := r.session
	cfg := r.settings
	var err error

	rig.Sun, err = host.Create(ctx, s, func() error {
		return s.AddLight(ctx, host.LightSpec{Type: "SUN"})
	})
	if err != nil {
		return fmt.Errorf("adding sun: %w", err)
	}
	rot := core.RadiansVec(core.NewVec3(cfg.SunRotation[0], cfg.SunRotation[1], cfg.SunRotation[2]))
	if err := s.SetRotation(ctx, rig.Sun, rot); err != nil {
		return err
	}
	return s.SetLight(ctx, rig.Sun, host.LightSettings{
		Energy:                   cfg.SunEnergy,
		ShadowCascadeMaxDistance: dims.Z * cfg.ShadowDistance,
	})
}
