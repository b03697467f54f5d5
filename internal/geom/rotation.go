package geom

import "math"

// Rotation is a 3x3 rotation matrix in row-major order.
type Rotation [3][3]float64

// Identity returns the identity rotation.
func Identity() Rotation {
	return Rotation{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// RotX returns a counterclockwise rotation of angle radians about the x axis.
func RotX(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}
}

// RotY returns a counterclockwise rotation of angle radians about the y axis.
func RotY(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

// RotZ returns a counterclockwise rotation of angle radians about the z axis.
func RotZ(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}

// FromRotVec builds a rotation from an axis-angle vector whose direction is the
// axis and whose length is the angle in radians (Rodrigues' formula).
func FromRotVec(v Vec3) Rotation {
	theta := v.Norm()
	if theta < 1e-12 {
		return Identity()
	}
	k := v.Scale(1 / theta)
	s, c := math.Sincos(theta)
	t := 1 - c
	return Rotation{
		{t*k.X*k.X + c, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y},
		{t*k.X*k.Y + s*k.Z, t*k.Y*k.Y + c, t*k.Y*k.Z - s*k.X},
		{t*k.X*k.Z - s*k.Y, t*k.Y*k.Z + s*k.X, t*k.Z*k.Z + c},
	}
}

// Mul composes two rotations. The result applies o first, then r.
func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += r[i][k] * o[k][j]
			}
		}
	}
	return out
}

// Apply rotates v.
func (r Rotation) Apply(v Vec3) Vec3 {
	return Vec3{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// ApplyAll rotates every point, returning a new slice.
func (r Rotation) ApplyAll(points []Vec3) []Vec3 {
	out := make([]Vec3, len(points))
	for i, p := range points {
		out[i] = r.Apply(p)
	}
	return out
}

// Inverse returns the inverse rotation, which for an orthonormal matrix is
// its transpose.
func (r Rotation) Inverse() Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[j][i]
		}
	}
	return out
}

// CameraToRobot is the fixed orientation correction from the detector's
// camera frame to the robot-facing frame: 90 degrees about x, then 90 degrees
// about z. It maps (x, y, z) to (z, x, y), so camera depth becomes robot x.
func CameraToRobot() Rotation {
	rx := FromRotVec(V(math.Pi/2, 0, 0))
	rz := FromRotVec(V(0, 0, math.Pi/2))
	return rz.Mul(rx)
}
