// Package fixedpoint implements the Q16.16 fixed-point arithmetic the
// renderers use exclusively on the device path: no floating point,
// polynomial trigonometry after angle wrapping, and an integer
// Newton's-method square root (spec.md §4.E, §9).
package fixedpoint

// Q16 is a Q16.16 signed fixed-point number: the low 16 bits are the
// fraction, the remaining bits the integer part.
type Q16 int32

const (
	fracBits = 16
	One      = Q16(1 << fracBits)
	Half     = Q16(1 << (fracBits - 1))

	// Pi and its multiples, pre-baked in Q16.16.
	Pi    = Q16(205887) // π × 65536, rounded
	TwoPi = Q16(2 * 205887)
	HalfPi = Q16(205887 / 2)
)

// FromInt converts an integer to Q16.16.
func FromInt(v int) Q16 { return Q16(v << fracBits) }

// ToInt rounds toward negative infinity (an arithmetic shift), so
// negative fractions floor rather than truncate.
func (q Q16) ToInt() int { return int(q) >> fracBits }

// Round rounds to the nearest integer.
func (q Q16) Round() int { return int(q+Half) >> fracBits }

// ToIntScaled treats q as a value in [0,1] (or beyond) and scales it
// into an integer range, e.g. a 0..1 noise sample into a 0..255 ink
// contribution.
func (q Q16) ToIntScaled(scale int) int {
	return int((int64(q) * int64(scale)) >> fracBits)
}

// FromRatio builds num/den in Q16.16, avoiding overflow for den up to
// ~32k by computing in int64.
func FromRatio(num, den int) Q16 {
	if den == 0 {
		return 0
	}
	return Q16((int64(num) << fracBits) / int64(den))
}

func (q Q16) Mul(o Q16) Q16 {
	return Q16((int64(q) * int64(o)) >> fracBits)
}

func (q Q16) Div(o Q16) Q16 {
	if o == 0 {
		return 0
	}
	return Q16((int64(q) << fracBits) / int64(o))
}

func (q Q16) Add(o Q16) Q16 { return q + o }
func (q Q16) Sub(o Q16) Q16 { return q - o }
func (q Q16) Neg() Q16      { return -q }
func (q Q16) Abs() Q16 {
	if q < 0 {
		return -q
	}
	return q
}

// WrapPi reduces an angle (in Q16.16 radians) to (-π, π], the
// precondition for the polynomial sin/cos approximations below.
func WrapPi(a Q16) Q16 {
	for a > Pi {
		a -= TwoPi
	}
	for a <= -Pi {
		a += TwoPi
	}
	return a
}

// Sin approximates sin(a) for a already wrapped to (-π, π] using the
// Bhaskara I rational approximation in fixed point: maximum absolute
// error about 0.002 over the full range, well inside the renderers'
// dithering tolerance.
func Sin(a Q16) Q16 {
	a = WrapPi(a)
	// Bhaskara I approximation: sin(x) ≈ 16x(π-x) / (5π² - 4x(π-x)), x∈[0,π].
	neg := false
	if a < 0 {
		a = -a
		neg = true
	}
	piMinusX := Pi - a
	num := FromInt(16).Mul(a).Mul(piMinusX)
	den := FromInt(5).Mul(Pi).Mul(Pi).Sub(FromInt(4).Mul(a).Mul(piMinusX))
	r := num.Div(den)
	if neg {
		return -r
	}
	return r
}

// Cos approximates cos(a) via the sin phase shift.
func Cos(a Q16) Q16 {
	return Sin(WrapPi(a + HalfPi))
}

// Sqrt computes a Q16.16 square root via integer Newton's method,
// operating entirely on the underlying int64 representation to avoid
// intermediate overflow. Zero and negative inputs return 0.
func Sqrt(q Q16) Q16 {
	if q <= 0 {
		return 0
	}
	// sqrt(q) in Q16.16 == sqrt(q.raw << 16), computed in raw int64 units.
	v := int64(q) << fracBits
	x := v
	if x == 0 {
		return 0
	}
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + v/x) / 2
	}
	return Q16(x)
}

// SqrtInt is a plain-integer Newton's-method square root (the floor of
// √n, 0 for n ≤ 0), with no fixed-point scaling involved.
func SqrtInt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
