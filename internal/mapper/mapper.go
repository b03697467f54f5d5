// Package mapper turns detector-frame hand, shoulder and hip positions into
// bounded robot-frame targets.
package mapper

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/instructor/internal/geom"
)

// Reach normalisation: the torso-relative goal is divided by
// ReachFactor * ArmRatio * torso length.
const (
	ReachFactor = 2.0
	ArmRatio    = 1.5
)

var (
	// ErrLengthMismatch is returned when the hand, shoulder and hip series differ in length.
	ErrLengthMismatch = errors.New("mapper: series length mismatch")

	// ErrDegenerateTorso is returned when the torso length is zero or not finite.
	ErrDegenerateTorso = errors.New("mapper: degenerate torso length")
)

// Workspace is the axis-aligned box the robot controller accepts targets in.
type Workspace struct {
	Min geom.Vec3
	Max geom.Vec3
}

// DefaultWorkspace returns the documented safe operating volume.
func DefaultWorkspace() Workspace {
	return Workspace{
		Min: geom.V(0.49, -0.5, 0),
		Max: geom.V(0.51, 0.5, 0.8),
	}
}

// Validate reports whether every Min component is no greater than Max.
func (w Workspace) Validate() error {
	if w.Min.X > w.Max.X || w.Min.Y > w.Max.Y || w.Min.Z > w.Max.Z {
		return fmt.Errorf("workspace min %v exceeds max %v", w.Min, w.Max)
	}
	return nil
}

// Clamp pins each axis of v into the box independently.
func (w Workspace) Clamp(v geom.Vec3) geom.Vec3 {
	return geom.Vec3{
		X: geom.Clamp(v.X, w.Min.X, w.Max.X),
		Y: geom.Clamp(v.Y, w.Min.Y, w.Max.Y),
		Z: geom.Clamp(v.Z, w.Min.Z, w.Max.Z),
	}
}

// Contains reports whether v lies inside the box, bounds included.
func (w Workspace) Contains(v geom.Vec3) bool {
	return v.X >= w.Min.X && v.X <= w.Max.X &&
		v.Y >= w.Min.Y && v.Y <= w.Max.Y &&
		v.Z >= w.Min.Z && v.Z <= w.Max.Z
}

// Mapper applies the camera-to-robot rotation, torso normalisation and
// workspace clamp. It holds no state between calls.
type Mapper struct {
	rot       geom.Rotation
	workspace Workspace
}

// New creates a Mapper using the fixed camera-to-robot rotation.
func New(ws Workspace) *Mapper {
	return &Mapper{
		rot:       geom.CameraToRobot(),
		workspace: ws,
	}
}

// Workspace returns the box targets are clamped into.
func (m *Mapper) Workspace() Workspace {
	return m.workspace
}

// Map converts aligned hand, shoulder-center and hip-center series into
// clamped targets, one per input sample.
func (m *Mapper) Map(hands, shoulders, hips []geom.Vec3) ([]geom.Vec3, error) {
	if len(hands) != len(shoulders) || len(hands) != len(hips) {
		return nil, fmt.Errorf("%w: hands=%d shoulders=%d hips=%d",
			ErrLengthMismatch, len(hands), len(shoulders), len(hips))
	}
	if len(hands) == 0 {
		return nil, nil
	}

	rHands := m.rot.ApplyAll(hands)
	rShoulders := m.rot.ApplyAll(shoulders)
	rHips := m.rot.ApplyAll(hips)

	torso := TorsoLength(rShoulders, rHips)
	if !(torso > 0) || math.IsInf(torso, 1) {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateTorso, torso)
	}
	scale := 1 / (ReachFactor * ArmRatio * torso)

	out := make([]geom.Vec3, len(rHands))
	for i := range rHands {
		goal := rHands[i].Sub(rHips[i]).Scale(scale)
		out[i] = m.workspace.Clamp(goal)
	}
	return out, nil
}

// MapHands rotates and clamps hand positions without torso normalisation.
// It is used for recordings that carry no shoulder or hip columns.
func (m *Mapper) MapHands(hands []geom.Vec3) []geom.Vec3 {
	if len(hands) == 0 {
		return nil
	}
	out := make([]geom.Vec3, len(hands))
	for i, h := range hands {
		out[i] = m.workspace.Clamp(m.rot.Apply(h))
	}
	return out
}

// TorsoLength is the mean shoulder-to-hip distance measured on the robot
// frame's y and z axes, ignoring depth (x). Inputs must already be rotated.
func TorsoLength(shoulders, hips []geom.Vec3) float64 {
	n := len(shoulders)
	if len(hips) < n {
		n = len(hips)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := shoulders[i].Sub(hips[i])
		d.X = 0
		sum += d.Norm()
	}
	return sum / float64(n)
}
