package types

import "fmt"

// Sample is one 3-axis reading inside a telemetry frame
type Sample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// FrameAverage is the per-axis mean of one telemetry frame
type FrameAverage struct {
	Count uint32  `json:"count"`
	X     float64 `json:"avg_x"`
	Y     float64 `json:"avg_y"`
	Z     float64 `json:"avg_z"`
}

func (a FrameAverage) String() string {
	return fmt.Sprintf("X: %.2f, Y: %.2f, Z: %.2f", a.X, a.Y, a.Z)
}
