package blender

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-batch-renderer/pkg/core"
	"github.com/df07/go-batch-renderer/pkg/host"
)

type fakeRequest struct {
	ID   int             `json:"id"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args"`
}

// fakeBridge answers requests the way bridge.py does, using handle to
// produce each reply
type fakeBridge struct {
	requests []fakeRequest
	handle   func(req fakeRequest) reply
}

func startFake(t *testing.T, handle func(req fakeRequest) reply) (*Session, *fakeBridge) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	fb := &fakeBridge{handle: handle}

	go func() {
		defer outW.Close()
		scanner := bufio.NewScanner(inR)
		for scanner.Scan() {
			var req fakeRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				return
			}
			fb.requests = append(fb.requests, req)
			r := fb.handle(req)
			r.ID = req.ID
			line, _ := json.Marshal(r)
			fmt.Fprintf(outW, "Blender log noise for %s\n", req.Op)
			fmt.Fprintf(outW, "%s%s\n", replyPrefix, line)
			if req.Op == "quit" {
				return
			}
		}
	}()

	s := newSession(outR, inW, nil)
	t.Cleanup(func() { s.Close() })
	return s, fb
}

func ok(result any) reply {
	raw, _ := json.Marshal(result)
	return reply{OK: true, Result: raw}
}

func TestCall_DecodesResults(t *testing.T) {
	ctx := context.Background()
	s, fb := startFake(t, func(req fakeRequest) reply {
		switch req.Op {
		case "scene_key":
			return ok("Scene")
		case "objects":
			return ok([]map[string]string{{"name": "Camera", "kind": "CAMERA"}, {"name": "cube", "kind": "MESH"}})
		case "dimensions":
			return ok([]float64{2, 1, 3})
		case "has_material":
			return ok(true)
		}
		return ok(nil)
	})

	key, err := s.SceneKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Scene", key)

	objects, err := s.Objects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []host.ObjectInfo{{Name: "Camera", Kind: host.KindCamera}, {Name: "cube", Kind: host.KindMesh}}, objects)

	cams, err := host.Cameras(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []host.Handle{"Camera"}, cams)

	dims, err := s.Dimensions(ctx, "cube")
	require.NoError(t, err)
	assert.Equal(t, core.NewVec3(2, 1, 3), dims)

	has, err := s.HasMaterial(ctx, "m_shadowcatcher")
	require.NoError(t, err)
	assert.True(t, has)

	require.Len(t, fb.requests, 5)
	assert.Equal(t, 1, fb.requests[0].ID)
	assert.Equal(t, 5, fb.requests[4].ID)
	assert.JSONEq(t, `{"name":"cube"}`, string(fb.requests[3].Args))
}

func TestCall_Arguments(t *testing.T) {
	ctx := context.Background()
	s, fb := startFake(t, func(req fakeRequest) reply { return ok(nil) })

	p := host.Placement{
		Location: core.NewVec3(1, -2, 3),
		Rotation: core.NewVec3(0, 0, 1.5),
		Scale:    core.NewVec3(1, 1, 1),
	}
	require.NoError(t, s.SetPlacement(ctx, "cube", p))
	require.NoError(t, s.SetScale(ctx, "Plane", core.NewVec3(201, 101, 1)))
	require.NoError(t, s.ImportModel(ctx, "/cache/cube.fbx", host.ImportOptions{AxisForward: "X", AxisUp: "Z"}))
	require.NoError(t, s.SetLight(ctx, "Sun", host.LightSettings{Energy: 10, ShadowCascadeMaxDistance: 30}))
	require.NoError(t, s.Render(ctx, host.RenderRequest{Output: "out/s1/s1_Scene_0", Animation: true}))

	require.Len(t, fb.requests, 5)
	assert.Equal(t, "set_transform", fb.requests[0].Op)
	assert.JSONEq(t, `{"name":"cube","location":[1,-2,3],"rotation":[0,0,1.5],"scale":[1,1,1]}`, string(fb.requests[0].Args))
	assert.JSONEq(t, `{"name":"Plane","scale":[201,101,1]}`, string(fb.requests[1].Args))
	assert.JSONEq(t, `{"path":"/cache/cube.fbx","axis_forward":"X","axis_up":"Z"}`, string(fb.requests[2].Args))
	assert.JSONEq(t, `{"name":"Sun","energy":10,"shadow_cascade_max_distance":30}`, string(fb.requests[3].Args))
	assert.JSONEq(t, `{"output":"out/s1/s1_Scene_0","animation":true}`, string(fb.requests[4].Args))
}

func TestCall_ErrorKinds(t *testing.T) {
	ctx := context.Background()
	s, _ := startFake(t, func(req fakeRequest) reply {
		switch req.Op {
		case "import_fbx":
			return reply{Kind: "import", Error: "file is not FBX"}
		case "render":
			return reply{Kind: "render", Error: "no camera"}
		default:
			return reply{Kind: "host", Error: "no object named 'x'"}
		}
	})

	err := s.ImportModel(ctx, "/cache/bad.fbx", host.ImportOptions{})
	assert.ErrorIs(t, err, host.ErrImport)
	assert.Contains(t, err.Error(), "file is not FBX")

	err = s.Render(ctx, host.RenderRequest{Output: "out"})
	assert.ErrorIs(t, err, host.ErrRender)

	err = s.ClearAnimation(ctx, "x")
	assert.ErrorIs(t, err, host.ErrHost)
}

func TestCall_HostExits(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go io.Copy(io.Discard, inR)
	s := newSession(outR, inW, nil)
	outW.Close()

	err := s.DeleteAll(context.Background())
	assert.ErrorIs(t, err, host.ErrHost)
}

func TestCall_ContextCancelled(t *testing.T) {
	inR, inW := io.Pipe()
	outR, _ := io.Pipe()
	go io.Copy(io.Discard, inR)
	s := newSession(outR, inW, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.DeleteAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuit_Once(t *testing.T) {
	s, fb := startFake(t, func(req fakeRequest) reply { return ok(nil) })
	require.NoError(t, s.Quit(context.Background()))
	require.NoError(t, s.Quit(context.Background()))
	require.Len(t, fb.requests, 1)
	assert.Equal(t, "quit", fb.requests[0].Op)
}

func TestCall_StaleReplyAfterTimeout(t *testing.T) {
	s, fb := startFake(t, func(req fakeRequest) reply {
		if req.Op == "render" {
			time.Sleep(100 * time.Millisecond)
		}
		if req.Op == "scene_key" {
			return ok("Scene")
		}
		return ok(nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Render(ctx, host.RenderRequest{Output: "out/s1/s1_Scene_0"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the late render reply arrives first and must not be taken as this one
	key, err := s.SceneKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Scene", key)
	require.NoError(t, s.Quit(context.Background()))

	require.Len(t, fb.requests, 3)
	assert.Equal(t, []string{"render", "scene_key", "quit"},
		[]string{fb.requests[0].Op, fb.requests[1].Op, fb.requests[2].Op})
}

func TestCall_ReplyFromTheFuture(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go io.Copy(io.Discard, inR)
	s := newSession(outR, inW, nil)
	go fmt.Fprintf(outW, "%s{\"id\":7,\"ok\":true}\n", replyPrefix)

	err := s.DeleteAll(context.Background())
	assert.ErrorIs(t, err, host.ErrHost)
	assert.Contains(t, err.Error(), "reply id 7")
}

func TestQuit_DrainsOutput(t *testing.T) {
	s, _ := startFake(t, func(req fakeRequest) reply { return ok(nil) })
	require.NoError(t, s.Quit(context.Background()))

	select {
	case _, open := <-s.replies:
		assert.False(t, open, "reader still running after Quit")
	default:
		t.Fatal("reader still running after Quit")
	}
}

func TestCommandLine(t *testing.T) {
	t.Setenv("BLENDER_HOME", "/opt/blender")
	name, args, err := commandLine(Options{Binary: "$BLENDER_HOME/blender --factory-startup", Template: "studio.blend"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/blender/blender", name)
	assert.Equal(t, []string{"--factory-startup", "--background", "studio.blend", "--python-exit-code", "1"}, args)

	_, _, err = commandLine(Options{Binary: "  "})
	assert.Error(t, err)
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, ExitStatus(nil))
	assert.Equal(t, 1, ExitStatus(assert.AnError))
	assert.True(t, CmdRan(nil))
	assert.False(t, CmdRan(assert.AnError))
}
