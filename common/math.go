package common

import (
	"github.com/chewxy/math32"
)

// matrixEpsilon is the tolerance used when classifying transforms.
const matrixEpsilon = 1e-6

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// IdentityMatrix returns a new column-major 4x4 identity matrix.
func IdentityMatrix() [16]float32 {
	var m [16]float32
	Identity(m[:])
	return m
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order.
// Result: out = a * b
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// ComposeTRS builds a column-major matrix from a translation, a rotation quaternion (x, y, z, w) and a scale.
// The result is T * R * S, the order glTF uses for node transforms.
//
// Parameters:
//   - t: translation
//   - r: rotation quaternion in (x, y, z, w) order
//   - s: scale
//
// Returns:
//   - [16]float32: the composed matrix
func ComposeTRS(t [3]float32, r [4]float32, s [3]float32) [16]float32 {
	x, y, z, w := r[0], r[1], r[2], r[3]
	if n := math32.Sqrt(x*x + y*y + z*z + w*w); n > 0 {
		x, y, z, w = x/n, y/n, z/n, w/n
	}

	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return [16]float32{
		(1 - 2*(yy+zz)) * s[0], 2 * (xy + wz) * s[0], 2 * (xz - wy) * s[0], 0,
		2 * (xy - wz) * s[1], (1 - 2*(xx+zz)) * s[1], 2 * (yz + wx) * s[1], 0,
		2 * (xz + wy) * s[2], 2 * (yz - wx) * s[2], (1 - 2*(xx+yy)) * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

// TranslationMatrix returns a column-major matrix that only translates.
func TranslationMatrix(x, y, z float32) [16]float32 {
	m := IdentityMatrix()
	m[12], m[13], m[14] = x, y, z
	return m
}

// MatrixTranslation returns the translation column of a column-major matrix.
func MatrixTranslation(m [16]float32) [3]float32 {
	return [3]float32{m[12], m[13], m[14]}
}

// IsIdentity reports whether m equals the identity matrix within a small tolerance.
func IsIdentity(m [16]float32) bool {
	id := IdentityMatrix()
	for i := range m {
		if math32.Abs(m[i]-id[i]) > matrixEpsilon {
			return false
		}
	}
	return true
}

// IsTranslationOnly reports whether m has an identity upper 3x3 block and an affine bottom row,
// meaning it can be expressed as a pure translation.
func IsTranslationOnly(m [16]float32) bool {
	id := IdentityMatrix()
	for i := 0; i < 12; i++ {
		if math32.Abs(m[i]-id[i]) > matrixEpsilon {
			return false
		}
	}
	return math32.Abs(m[15]-1) <= matrixEpsilon
}
