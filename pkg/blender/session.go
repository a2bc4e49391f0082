// Package blender implements host.Session on top of a Blender process
// running an embedded command bridge.
//
// Requests are JSON lines on Blender's stdin. Replies come back on stdout
// as lines prefixed with "@@bridge "; every other stdout line is Blender's
// own log output and is forwarded to the logger.
package blender

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/df07/go-batch-renderer/pkg/core"
	"github.com/df07/go-batch-renderer/pkg/host"
)

const replyPrefix = "@@bridge "

type request struct {
	ID   int    `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type reply struct {
	ID     int             `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Kind   string          `json:"kind"`
}

// Session is a host.Session backed by the bridge protocol
type Session struct {
	stdin   io.WriteCloser
	enc     *json.Encoder
	replies chan reply
	logger  *slog.Logger

	mu      sync.Mutex
	readErr error
	seq     int
	quit    bool

	proc *process // nil when the session runs over plain pipes
}

var _ host.Session = (*Session)(nil)

// newSession speaks the protocol over the given pipes and starts reading replies
func newSession(stdout io.Reader, stdin io.WriteCloser, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		replies: make(chan reply),
		logger:  logger,
	}
	go s.readLoop(stdout)
	return s
}

func (s *Session) readLoop(stdout io.Reader) {
	defer close(s.replies)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, replyPrefix)
		if !ok {
			if strings.TrimSpace(line) != "" {
				s.logger.Debug(line, "source", "host")
			}
			continue
		}
		var r reply
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			s.setReadErr(fmt.Errorf("%w: malformed reply: %v", host.ErrHost, err))
			return
		}
		s.replies <- r
	}
	if err := scanner.Err(); err != nil {
		s.setReadErr(fmt.Errorf("%w: reading host output: %v", host.ErrHost, err))
	}
}

func (s *Session) setReadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil {
		s.readErr = err
	}
}

func (s *Session) exitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return s.readErr
	}
	return fmt.Errorf("%w: host exited", host.ErrHost)
}

// call sends one request and waits for its reply. result may be nil.
func (s *Session) call(ctx context.Context, op string, args any, result any) error {
	s.seq++
	id := s.seq
	if err := s.enc.Encode(request{ID: id, Op: op, Args: args}); err != nil {
		return fmt.Errorf("%w: sending %s: %v", host.ErrHost, op, err)
	}

	r, err := s.await(ctx, op, id)
	if err != nil {
		return err
	}
	if !r.OK {
		return fmt.Errorf("%w: %s: %s", kindError(r.Kind), op, r.Error)
	}
	if result != nil {
		if err := json.Unmarshal(r.Result, result); err != nil {
			return fmt.Errorf("%w: %s: decoding result: %v", host.ErrHost, op, err)
		}
	}
	return nil
}

// await returns the reply to request id. Replies to earlier requests whose
// callers gave up are dropped.
func (s *Session) await(ctx context.Context, op string, id int) (reply, error) {
	for {
		select {
		case <-ctx.Done():
			return reply{}, ctx.Err()
		case r, ok := <-s.replies:
			if !ok {
				return reply{}, fmt.Errorf("%s: %w", op, s.exitErr())
			}
			if r.ID < id {
				s.logger.Debug("dropping stale reply", "id", r.ID, "op", op)
				continue
			}
			if r.ID != id {
				return reply{}, fmt.Errorf("%w: %s: reply id %d, expected %d", host.ErrHost, op, r.ID, id)
			}
			return r, nil
		}
	}
}

// drain discards replies until the reader stops, so the host's stdout is
// fully consumed before the process is reaped
func (s *Session) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.replies:
			if !ok {
				return
			}
		}
	}
}

func kindError(kind string) error {
	switch kind {
	case "import":
		return host.ErrImport
	case "render":
		return host.ErrRender
	default:
		return host.ErrHost
	}
}

type nameArgs struct {
	Name string `json:"name"`
}

type transformArgs struct {
	Name     string      `json:"name"`
	Location *[3]float64 `json:"location,omitempty"`
	Rotation *[3]float64 `json:"rotation,omitempty"`
	Scale    *[3]float64 `json:"scale,omitempty"`
}

func vec(v core.Vec3) *[3]float64 {
	a := v.Array()
	return &a
}

func (s *Session) SceneKey(ctx context.Context) (string, error) {
	var key string
	err := s.call(ctx, "scene_key", nil, &key)
	return key, err
}

func (s *Session) Objects(ctx context.Context) ([]host.ObjectInfo, error) {
	var objects []host.ObjectInfo
	err := s.call(ctx, "objects", nil, &objects)
	return objects, err
}

func (s *Session) DeleteAll(ctx context.Context) error {
	return s.call(ctx, "delete_all", nil, nil)
}

func (s *Session) SetUnits(ctx context.Context, units host.UnitSettings) error {
	return s.call(ctx, "set_units", units, nil)
}

func (s *Session) ImportModel(ctx context.Context, path string, opts host.ImportOptions) error {
	args := struct {
		Path string `json:"path"`
		host.ImportOptions
	}{path, opts}
	return s.call(ctx, "import_fbx", args, nil)
}

func (s *Session) AddCamera(ctx context.Context, spec host.CameraSpec) error {
	args := map[string]any{"location": vec(spec.Location), "rotation": vec(spec.Rotation)}
	return s.call(ctx, "add_camera", args, nil)
}

func (s *Session) AddLight(ctx context.Context, spec host.LightSpec) error {
	args := map[string]any{"type": spec.Type, "radius": spec.Radius, "location": vec(spec.Location)}
	return s.call(ctx, "add_light", args, nil)
}

func (s *Session) AddEmpty(ctx context.Context, location core.Vec3) error {
	return s.call(ctx, "add_empty", map[string]any{"location": vec(location)}, nil)
}

func (s *Session) AddPlane(ctx context.Context, size float64, location core.Vec3) error {
	return s.call(ctx, "add_plane", map[string]any{"size": size, "location": vec(location)}, nil)
}

func (s *Session) SetPlacement(ctx context.Context, h host.Handle, p host.Placement) error {
	args := transformArgs{Name: string(h), Location: vec(p.Location), Rotation: vec(p.Rotation), Scale: vec(p.Scale)}
	return s.call(ctx, "set_transform", args, nil)
}

func (s *Session) SetLocation(ctx context.Context, h host.Handle, location core.Vec3) error {
	return s.call(ctx, "set_transform", transformArgs{Name: string(h), Location: vec(location)}, nil)
}

func (s *Session) SetRotation(ctx context.Context, h host.Handle, rotation core.Vec3) error {
	return s.call(ctx, "set_transform", transformArgs{Name: string(h), Rotation: vec(rotation)}, nil)
}

func (s *Session) SetScale(ctx context.Context, h host.Handle, scale core.Vec3) error {
	return s.call(ctx, "set_transform", transformArgs{Name: string(h), Scale: vec(scale)}, nil)
}

func (s *Session) ApplyTransform(ctx context.Context, h host.Handle) error {
	return s.call(ctx, "apply_transform", nameArgs{string(h)}, nil)
}

func (s *Session) ClearAnimation(ctx context.Context, h host.Handle) error {
	return s.call(ctx, "clear_animation", nameArgs{string(h)}, nil)
}

func (s *Session) SetParent(ctx context.Context, child, parent host.Handle) error {
	return s.call(ctx, "set_parent", map[string]string{"child": string(child), "parent": string(parent)}, nil)
}

func (s *Session) SetCameraFOV(ctx context.Context, h host.Handle, radians float64) error {
	return s.call(ctx, "set_camera_fov", map[string]any{"name": string(h), "angle": radians}, nil)
}

func (s *Session) SetLight(ctx context.Context, h host.Handle, settings host.LightSettings) error {
	args := struct {
		Name string `json:"name"`
		host.LightSettings
	}{string(h), settings}
	return s.call(ctx, "set_light", args, nil)
}

func (s *Session) SetMaterial(ctx context.Context, h host.Handle, material string) error {
	return s.call(ctx, "set_material", map[string]string{"name": string(h), "material": material}, nil)
}

func (s *Session) HasMaterial(ctx context.Context, material string) (bool, error) {
	var ok bool
	err := s.call(ctx, "has_material", map[string]string{"material": material}, &ok)
	return ok, err
}

func (s *Session) Dimensions(ctx context.Context, h host.Handle) (core.Vec3, error) {
	return s.vecCall(ctx, "dimensions", h)
}

func (s *Session) BoundsCenter(ctx context.Context, h host.Handle) (core.Vec3, error) {
	return s.vecCall(ctx, "bounds_center", h)
}

func (s *Session) vecCall(ctx context.Context, op string, h host.Handle) (core.Vec3, error) {
	var values []float64
	if err := s.call(ctx, op, nameArgs{string(h)}, &values); err != nil {
		return core.Vec3{}, err
	}
	v, err := core.Vec3FromSlice(values)
	if err != nil {
		return core.Vec3{}, fmt.Errorf("%w: %s: %v", host.ErrHost, op, err)
	}
	return v, nil
}

func (s *Session) ConfigureRender(ctx context.Context, settings host.RenderSettings) error {
	return s.call(ctx, "configure_render", settings, nil)
}

func (s *Session) SetActiveCamera(ctx context.Context, h host.Handle) error {
	return s.call(ctx, "set_active_camera", nameArgs{string(h)}, nil)
}

func (s *Session) Render(ctx context.Context, req host.RenderRequest) error {
	args := map[string]any{"output": req.Output, "animation": req.Animation}
	return s.call(ctx, "render", args, nil)
}

// Quit asks Blender to exit and waits for the process to end
func (s *Session) Quit(ctx context.Context) error {
	if s.quit {
		return nil
	}
	s.quit = true
	err := s.call(ctx, "quit", nil, nil)
	s.stdin.Close()
	s.drain(ctx)
	if s.proc != nil {
		if werr := s.proc.wait(); err == nil {
			err = werr
		}
	}
	return err
}

// Close ends the host process if Quit did not, and removes temporary files
func (s *Session) Close() error {
	if !s.quit {
		s.quit = true
		s.stdin.Close()
	}
	if s.proc == nil {
		return nil
	}
	s.proc.kill()
	s.drain(context.Background())
	return s.proc.close()
}
