// Package assembler builds a multi-object scene in the host and renders it
// once per camera.
//
// Assembly runs in three independent phases (objects, cameras, lights), each
// returning the handles it created, followed by a separate render phase.
package assembler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/convert"
	"github.com/df07/go-batch-renderer/pkg/host"
	"github.com/df07/go-batch-renderer/pkg/renderer"
	"github.com/df07/go-batch-renderer/pkg/scene"
)

// ModelResolver maps a model id to a local file
type ModelResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Assembler drives one host session through a scene
type Assembler struct {
	session  host.Session
	models   ModelResolver
	settings config.AssemblerSettings
	logger   *slog.Logger
}

// New creates an assembler
func New(session host.Session, models ModelResolver, settings config.AssemblerSettings, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{session: session, models: models, settings: settings, logger: logger}
}

// Result lists what a run created and rendered
type Result struct {
	Objects []host.Handle
	Cameras []host.Handle
	Lights  []host.Handle
	Stats   *renderer.RenderStats
}

// Run assembles s in the host and renders every camera below renderRoot
func (a *Assembler) Run(ctx context.Context, s *scene.Scene, renderRoot string) (*Result, error) {
	res := &Result{}
	var err error

	if err = a.Prepare(ctx); err != nil {
		return res, err
	}
	a.logger.Info("adding objects", "count", len(s.Objects))
	if res.Objects, err = a.AddObjects(ctx, s.Objects); err != nil {
		return res, err
	}
	a.logger.Info("adding cameras", "count", len(s.Cameras))
	if res.Cameras, err = a.AddCameras(ctx, s.Cameras); err != nil {
		return res, err
	}
	a.logger.Info("adding lights", "count", len(s.Lights))
	if res.Lights, err = a.AddLights(ctx, s.Lights); err != nil {
		return res, err
	}

	res.Stats, err = renderer.NewSequencer(a.session, renderRoot, a.logger).RenderCameras(ctx, s.ID)
	return res, err
}

// Prepare empties the host scene and sets its unit system
func (a *Assembler) Prepare(ctx context.Context) error {
	if err := a.session.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing scene: %w", err)
	}
	units := host.UnitSettings{System: "METRIC", ScaleLength: a.settings.UnitScale}
	if err := a.session.SetUnits(ctx, units); err != nil {
		return fmt.Errorf("setting units: %w", err)
	}
	return nil
}

// AddObjects imports and places every object, returning their handles in order
func (a *Assembler) AddObjects(ctx context.Context, objects []scene.Object) ([]host.Handle, error) {
	opts := host.ImportOptions{AxisForward: a.settings.AxisForward, AxisUp: a.settings.AxisUp}
	handles := make([]host.Handle, 0, len(objects))

	for i, obj := range objects {
		path, err := a.models.Resolve(ctx, obj.MeshID)
		if err != nil {
			return handles, fmt.Errorf("object %d: %w", i, err)
		}

		h, err := host.Create(ctx, a.session, func() error {
			return a.session.ImportModel(ctx, path, opts)
		})
		if err != nil {
			return handles, fmt.Errorf("object %d (%s): %w", i, obj.MeshID, err)
		}
		if err := a.session.ApplyTransform(ctx, h); err != nil {
			return handles, err
		}
		if err := a.session.SetPlacement(ctx, h, convert.Object(obj.Transform)); err != nil {
			return handles, err
		}
		if err := a.session.ClearAnimation(ctx, h); err != nil {
			return handles, err
		}

		a.logger.Debug("object placed", "mesh_id", obj.MeshID, "handle", h)
		handles = append(handles, h)
	}
	return handles, nil
}

// AddCameras creates every camera, returning their handles in order
func (a *Assembler) AddCameras(ctx context.Context, cameras []scene.Camera) ([]host.Handle, error) {
	handles := make([]host.Handle, 0, len(cameras))
	for i, cam := range cameras {
		spec := convert.Camera(cam.Transform)
		h, err := host.Create(ctx, a.session, func() error {
			return a.session.AddCamera(ctx, spec)
		})
		if err != nil {
			return handles, fmt.Errorf("camera %d: %w", i, err)
		}
		if err := a.session.SetCameraFOV(ctx, h, convert.FOV(cam.FOV)); err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// AddLights creates every point light, returning their handles in order
func (a *Assembler) AddLights(ctx context.Context, lights []scene.Light) ([]host.Handle, error) {
	handles := make([]host.Handle, 0, len(lights))
	for i, light := range lights {
		spec := convert.PointLight(light)
		h, err := host.Create(ctx, a.session, func() error {
			return a.session.AddLight(ctx, spec)
		})
		if err != nil {
			return handles, fmt.Errorf("light %d: %w", i, err)
		}
		settings := host.LightSettings{Energy: convert.LightEnergy(light.Intensity)}
		if err := a.session.SetLight(ctx, h, settings); err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}
