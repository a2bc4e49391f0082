package renderer

import (
	"fmt"
	"path/filepath"
)

// CameraOutputPath names the output of one camera in a multi-camera render:
// <root>/<id>/<id>_<sceneKey>_<index>
func CameraOutputPath(root, id, sceneKey string, index int) string {
	return filepath.Join(root, id, fmt.Sprintf("%s_%s_%d", id, sceneKey, index))
}

// StillOutputPath names a single turntable still: <root>/<id>/<id>
func StillOutputPath(root, id string) string {
	return filepath.Join(root, id, id)
}

// TurntableOutputPath names one turntable step, numbered from 1: <root>/<id>/<id>_<step+1>
func TurntableOutputPath(root, id string, step int) string {
	return filepath.Join(root, id, fmt.Sprintf("%s_%d", id, step+1))
}

// OutputDir is the folder receiving every output of a run
func OutputDir(root, id string) string {
	return filepath.Join(root, id)
}
