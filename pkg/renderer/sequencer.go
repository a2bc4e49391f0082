package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/df07/go-batch-renderer/pkg/convert"
	"github.com/df07/go-batch-renderer/pkg/host"
)

// Sequencer issues render calls against a host session and names their outputs
type Sequencer struct {
	session host.Session
	root    string
	logger  *slog.Logger
}

// NewSequencer creates a sequencer writing below root
func NewSequencer(session host.Session, root string, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{session: session, root: root, logger: logger}
}

// RenderCameras renders the full animation range once per camera present
// in the host scene, pre-existing cameras included, in creation order
func (s *Sequencer) RenderCameras(ctx context.Context, id string) (*RenderStats, error) {
	stats := &RenderStats{Mode: "cameras"}

	sceneKey, err := s.session.SceneKey(ctx)
	if err != nil {
		return stats, err
	}
	cameras, err := host.Cameras(ctx, s.session)
	if err != nil {
		return stats, err
	}

	for i, cam := range cameras {
		s.logger.Info("rendering", "scene", sceneKey, "camera", cam, "index", i)
		if err := s.session.SetActiveCamera(ctx, cam); err != nil {
			return stats, err
		}
		output := CameraOutputPath(s.root, id, sceneKey, i)
		if err := s.render(ctx, stats, host.RenderRequest{Output: output, Animation: true}); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// RenderStill renders one still through camera
func (s *Sequencer) RenderStill(ctx context.Context, id string, camera host.Handle) (*RenderStats, error) {
	stats := &RenderStats{Mode: "still"}
	if err := s.session.SetActiveCamera(ctx, camera); err != nil {
		return stats, err
	}
	s.logger.Info("rendering still", "camera", camera)
	err := s.render(ctx, stats, host.RenderRequest{Output: StillOutputPath(s.root, id)})
	return stats, err
}

// RenderTurntable renders steps stills, spinning subject about its vertical
// axis. Each step assigns the absolute rotation, so steps are independent.
func (s *Sequencer) RenderTurntable(ctx context.Context, id string, camera, subject host.Handle, steps int) (*RenderStats, error) {
	stats := &RenderStats{Mode: "turntable"}
	if steps <= 0 {
		return stats, fmt.Errorf("turntable steps must be positive, got %d", steps)
	}
	if err := s.session.SetActiveCamera(ctx, camera); err != nil {
		return stats, err
	}
	s.logger.Info("turntable render", "steps", steps, "camera", camera, "subject", subject)

	for step := 0; step < steps; step++ {
		if err := s.session.SetRotation(ctx, subject, convert.TurntableRotation(step, steps)); err != nil {
			return stats, err
		}
		output := TurntableOutputPath(s.root, id, step)
		s.logger.Debug("turntable step", "step", step+1, "angle", convert.TurntableAngle(step, steps))
		if err := s.render(ctx, stats, host.RenderRequest{Output: output}); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (s *Sequencer) render(ctx context.Context, stats *RenderStats, req host.RenderRequest) error {
	start := time.Now()
	if err := s.session.Render(ctx, req); err != nil {
		return fmt.Errorf("rendering %s: %w", req.Output, err)
	}
	stats.add(req.Output, time.Since(start))
	return nil
}
