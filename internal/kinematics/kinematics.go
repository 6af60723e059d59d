package kinematics

import "math"

// Vec3 is a 3-component vector.
type Vec3 [3]float64

func (v Vec3) X() float64 { return v[0] }
func (v Vec3) Y() float64 { return v[1] }
func (v Vec3) Z() float64 { return v[2] }

func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

func (v Vec3) Scale(c float64) Vec3 {
	return Vec3{v[0] * c, v[1] * c, v[2] * c}
}

// MaxAbs returns the largest component magnitude.
func (v Vec3) MaxAbs() float64 {
	m := math.Abs(v[0])
	if a := math.Abs(v[1]); a > m {
		m = a
	}
	if a := math.Abs(v[2]); a > m {
		m = a
	}
	return m
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3]Vec3

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Jacobian builds the fixed transform from the three wheel angular
// velocities to body-frame angular rates (x=roll, y=pitch, z=yaw).
// wheelRadius and ballRadius are in meters, alpha is the wheel mounting
// half-angle in radians. The rows follow the omniwheel-on-sphere
// geometry: three drive wheels spaced 120 degrees apart, pressed against
// the ball at inclination alpha.
func Jacobian(wheelRadius, ballRadius, alpha float64) Mat3 {
	jx := wheelRadius / (3 * ballRadius * math.Cos(alpha))
	jz := wheelRadius / (3 * ballRadius * math.Sin(alpha))
	s3 := math.Sqrt(3)

	return Mat3{
		{-2 * jx, jx, jx},
		{0, -s3 * jx, s3 * jx},
		{jz, jz, jz},
	}
}

// BodyRates maps measured wheel angular velocities to body-frame angular
// rates through the Jacobian. Pure; same input always yields the same
// output.
func BodyRates(j Mat3, dpsi Vec3) Vec3 {
	return j.MulVec(dpsi)
}

// Accel is the backward finite-difference angular acceleration between
// two consecutive body-rate samples taken dt seconds apart. The previous
// sample is owned by the caller.
func Accel(cur, prev Vec3, dt float64) Vec3 {
	if dt <= 0 {
		return Vec3{}
	}
	return cur.Sub(prev).Scale(1 / dt)
}
