package renderer

import (
	"fmt"
	"time"
)

// RenderStats contains statistics about a render run
type RenderStats struct {
	Mode    string        // "cameras", "still" or "turntable"
	Renders int           // Number of render calls issued
	Outputs []string      // Output path stems, in render order
	Elapsed time.Duration // Wall time spent inside render calls
}

// add records one completed render call
func (s *RenderStats) add(output string, took time.Duration) {
	s.Renders++
	s.Outputs = append(s.Outputs, output)
	s.Elapsed += took
}

// AveragePerRender returns the mean time of a render call
func (s *RenderStats) AveragePerRender() time.Duration {
	if s.Renders == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Renders)
}

func (s *RenderStats) String() string {
	return fmt.Sprintf("%s: %d renders in %v (avg %v)", s.Mode, s.Renders,
		s.Elapsed.Round(time.Millisecond), s.AveragePerRender().Round(time.Millisecond))
}
