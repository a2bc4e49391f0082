package scene

import (
	"fmt"

	"github.com/df07/go-batch-renderer/pkg/core"
	"github.com/df07/go-batch-renderer/pkg/payload"
)

// CameraType is the only camera type tag the assembler accepts
const CameraType = "camera"

// Build converts a decoded scene payload into a Scene.
// Only the first entry of sceneList is used. Camera entries whose type is
// not "camera" are dropped without error.
func Build(doc payload.Document) (*Scene, error) {
	id, err := requireString(doc, "_id", "_id")
	if err != nil {
		return nil, err
	}

	list, ok := doc["sceneList"].([]any)
	if !ok || len(list) == 0 {
		return nil, missing("sceneList", "expected a non-empty array")
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return nil, missing("sceneList[0]", "expected an object")
	}

	s := &Scene{ID: id}

	objects, err := optionalArray(first, "objects", "sceneList[0].objects")
	if err != nil {
		return nil, err
	}
	for i, entry := range objects {
		path := fmt.Sprintf("sceneList[0].objects[%d]", i)
		obj, err := buildObject(entry, path)
		if err != nil {
			return nil, err
		}
		s.Objects = append(s.Objects, obj)
	}

	cameras, err := optionalArray(first, "cameras", "sceneList[0].cameras")
	if err != nil {
		return nil, err
	}
	for i, entry := range cameras {
		path := fmt.Sprintf("sceneList[0].cameras[%d]", i)
		m, ok := entry.(map[string]any)
		if !ok || m["type"] != CameraType {
			continue
		}
		cam, err := buildCamera(m, path)
		if err != nil {
			return nil, err
		}
		s.Cameras = append(s.Cameras, cam)
	}

	lights, err := optionalArray(first, "lights", "sceneList[0].lights")
	if err != nil {
		return nil, err
	}
	for i, entry := range lights {
		path := fmt.Sprintf("sceneList[0].lights[%d]", i)
		light, err := buildLight(entry, path)
		if err != nil {
			return nil, err
		}
		s.Lights = append(s.Lights, light)
	}

	return s, nil
}

// BuildSubject reads the turntable payload, which only carries _id
func BuildSubject(doc payload.Document) (*Subject, error) {
	id, err := requireString(doc, "_id", "_id")
	if err != nil {
		return nil, err
	}
	return &Subject{ID: id}, nil
}

func buildObject(entry any, path string) (Object, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Object{}, missing(path, "expected an object")
	}
	typ, err := requireString(m, "type", path+".type")
	if err != nil {
		return Object{}, err
	}
	meshID, err := requireString(m, "mesh_id", path+".mesh_id")
	if err != nil {
		return Object{}, err
	}
	t, err := buildTransform(m, path+".transform")
	if err != nil {
		return Object{}, err
	}
	return Object{Type: typ, MeshID: meshID, Transform: t}, nil
}

func buildCamera(m map[string]any, path string) (Camera, error) {
	fov, err := requireNumber(m, "fov", path+".fov")
	if err != nil {
		return Camera{}, err
	}
	t, err := buildTransform(m, path+".transform")
	if err != nil {
		return Camera{}, err
	}
	return Camera{Type: CameraType, FOV: fov, Transform: t}, nil
}

func buildLight(entry any, path string) (Light, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Light{}, missing(path, "expected an object")
	}
	typ, err := requireString(m, "type", path+".type")
	if err != nil {
		return Light{}, err
	}
	intensity, err := requireNumber(m, "intensity", path+".intensity")
	if err != nil {
		return Light{}, err
	}
	radius, err := requireNumber(m, "radius", path+".radius")
	if err != nil {
		return Light{}, err
	}
	t, err := buildTransform(m, path+".transform")
	if err != nil {
		return Light{}, err
	}
	return Light{Type: typ, Intensity: intensity, Radius: radius, Transform: t}, nil
}

func buildTransform(parent map[string]any, path string) (Transform, error) {
	m, ok := parent["transform"].(map[string]any)
	if !ok {
		return Transform{}, missing(path, "expected an object")
	}
	var t Transform
	var err error
	if t.Position, err = requireVec3(m, "location", path+".location"); err != nil {
		return Transform{}, err
	}
	if t.Rotation, err = requireVec3(m, "rotation", path+".rotation"); err != nil {
		return Transform{}, err
	}
	if t.Scale, err = requireVec3(m, "scale", path+".scale"); err != nil {
		return Transform{}, err
	}
	return t, nil
}

func requireString(m map[string]any, key, path string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", missing(path, "")
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", missing(path, "expected a non-empty string")
	}
	return s, nil
}

func requireNumber(m map[string]any, key, path string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, missing(path, "")
	}
	f, ok := v.(float64)
	if !ok {
		return 0, missing(path, "expected a number")
	}
	return f, nil
}

func requireVec3(m map[string]any, key, path string) (core.Vec3, error) {
	v, ok := m[key]
	if !ok {
		return core.Vec3{}, missing(path, "")
	}
	items, ok := v.([]any)
	if !ok {
		return core.Vec3{}, malformed(path, "expected an array of 3 numbers")
	}
	values := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return core.Vec3{}, malformed(path, fmt.Sprintf("component %d is not a number", i))
		}
		values[i] = f
	}
	vec, err := core.Vec3FromSlice(values)
	if err != nil {
		return core.Vec3{}, malformed(path, err.Error())
	}
	return vec, nil
}

func optionalArray(m map[string]any, key, path string) ([]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, missing(path, "expected an array")
	}
	return items, nil
}
