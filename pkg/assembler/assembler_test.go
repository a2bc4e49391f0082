package assembler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/core"
	"github.com/df07/go-batch-renderer/pkg/host"
	"github.com/df07/go-batch-renderer/pkg/loaders"
	"github.com/df07/go-batch-renderer/pkg/payload"
	"github.com/df07/go-batch-renderer/pkg/scene"
)

// cacheResolver resolves every id to /cache/<id>.fbx except those listed as missing
type cacheResolver struct {
	missing map[string]bool
}

func (r cacheResolver) Resolve(ctx context.Context, id string) (string, error) {
	if r.missing[id] {
		return "", fmt.Errorf("%w: %s", loaders.ErrModelNotFound, id)
	}
	return loaders.ModelPath("/cache", id)
}

func buildScene(t *testing.T, raw string) *scene.Scene {
	t.Helper()
	doc, err := payload.FromJSON("scene", []byte(raw)).Decode()
	require.NoError(t, err)
	s, err := scene.Build(doc)
	require.NoError(t, err)
	return s
}

func newAssembler(rec *host.Recorder, resolver ModelResolver) *Assembler {
	return New(rec, resolver, config.DefaultSettings().Assembler, nil)
}

func TestRun_SingleObjectNoCameras(t *testing.T) {
	s := buildScene(t, `{"_id":"s1","sceneList":[{
		"objects":[{"type":"mesh","mesh_id":"cube01",
			"transform":{"location":[1,2,3],"rotation":[0,0,0],"scale":[1,1,1]}}],
		"cameras":[],"lights":[]}]}`)

	rec := host.NewRecorder()
	res, err := newAssembler(rec, cacheResolver{}).Run(context.Background(), s, "out")
	require.NoError(t, err)

	require.Equal(t, []host.Handle{"cube01"}, res.Objects)
	obj, ok := rec.Object("cube01")
	require.True(t, ok)
	assert.Equal(t, core.NewVec3(1, -2, 3), obj.Placement.Location)
	assert.Equal(t, core.NewVec3(1, 1, 1), obj.Placement.Scale)

	assert.Zero(t, res.Stats.Renders)
	assert.Empty(t, rec.Renders, "no cameras means no outputs")
}

func TestRun_FullScene(t *testing.T) {
	s := buildScene(t, `{"_id":"s2","sceneList":[{
		"objects":[
			{"type":"mesh","mesh_id":"table","transform":{"location":[0,0,0],"rotation":[0,0,90],"scale":[2,2,2]}},
			{"type":"mesh","mesh_id":"table","transform":{"location":[5,5,0],"rotation":[0,0,0],"scale":[1,1,1]}}
		],
		"cameras":[
			{"type":"camera","fov":60,"transform":{"location":[0,-10,2],"rotation":[0,0,0],"scale":[1,1,1]}},
			{"type":"helper","fov":20},
			{"type":"camera","fov":40,"transform":{"location":[10,0,2],"rotation":[5,10,15],"scale":[1,1,1]}}
		],
		"lights":[
			{"type":"point","intensity":90,"radius":0.1,"transform":{"location":[0,4,8],"rotation":[0,0,0],"scale":[1,1,1]}}
		]}]}`)

	ctx := context.Background()
	rec := host.NewRecorder()
	res, err := newAssembler(rec, cacheResolver{}).Run(ctx, s, "out")
	require.NoError(t, err)

	assert.Equal(t, []host.Handle{"table", "table.001"}, res.Objects)
	assert.Equal(t, []host.Handle{"Camera", "Camera.001"}, res.Cameras)
	assert.Equal(t, []host.Handle{"Point"}, res.Lights)

	table, _ := rec.Object("table")
	assert.InDelta(t, -math.Pi/2, table.Placement.Rotation.Z, 1e-12)

	cam, _ := rec.Object("Camera")
	assert.Equal(t, core.NewVec3(0, 10, 2), cam.Placement.Location)
	assert.InDelta(t, math.Pi/2, cam.Placement.Rotation.X, 1e-12)
	assert.InDelta(t, 3*math.Pi/2, cam.Placement.Rotation.Z, 1e-12)
	assert.InDelta(t, 60*math.Pi/180, cam.FOV, 1e-12)

	light, _ := rec.Object("Point")
	assert.Equal(t, core.NewVec3(0, -4, 8), light.Placement.Location)
	assert.InDelta(t, 100.0, light.Light.Energy, 1e-9)
	assert.Equal(t, 0.1, light.Radius)

	cams, err := host.Cameras(ctx, rec)
	require.NoError(t, err)
	assert.Len(t, rec.Renders, len(cams))
	assert.Equal(t, []string{
		filepath.Join("out", "s2", "s2_Scene_0"),
		filepath.Join("out", "s2", "s2_Scene_1"),
	}, res.Stats.Outputs)

	assert.Equal(t, "delete_all", rec.Calls[0].Op)
	assert.Equal(t, "set_units METRIC 0.01", rec.Calls[1].String())
}

func TestRun_MissingModel(t *testing.T) {
	s := buildScene(t, `{"_id":"s3","sceneList":[{
		"objects":[{"type":"mesh","mesh_id":"ghost","transform":{"location":[0,0,0],"rotation":[0,0,0],"scale":[1,1,1]}}],
		"cameras":[{"type":"camera","fov":50,"transform":{"location":[0,0,0],"rotation":[0,0,0],"scale":[1,1,1]}}]}]}`)

	rec := host.NewRecorder()
	_, err := newAssembler(rec, cacheResolver{missing: map[string]bool{"ghost": true}}).
		Run(context.Background(), s, "out")
	assert.ErrorIs(t, err, loaders.ErrModelNotFound)
	assert.Empty(t, rec.Renders)
}

func TestRun_ImportFailure(t *testing.T) {
	s := buildScene(t, `{"_id":"s4","sceneList":[{
		"objects":[{"type":"mesh","mesh_id":"broken","transform":{"location":[0,0,0],"rotation":[0,0,0],"scale":[1,1,1]}}]}]}`)

	rec := host.NewRecorder()
	rec.ImportErr = func(path string) error { return errors.New("not an FBX file") }
	_, err := newAssembler(rec, cacheResolver{}).Run(context.Background(), s, "out")
	assert.ErrorIs(t, err, host.ErrImport)
}

func TestAddObjects_ImportCreatingNothing(t *testing.T) {
	ctx := context.Background()
	rec := host.NewRecorder()
	a := New(&silentImport{rec}, cacheResolver{}, config.DefaultSettings().Assembler, nil)

	_, err := a.AddObjects(ctx, []scene.Object{{MeshID: "empty"}})
	assert.ErrorIs(t, err, host.ErrNoNewObject)
}

// silentImport simulates an importer that succeeds without adding objects
type silentImport struct {
	*host.Recorder
}

func (s *silentImport) ImportModel(ctx context.Context, path string, opts host.ImportOptions) error {
	return nil
}
