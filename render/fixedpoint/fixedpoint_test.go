package fixedpoint

import "testing"

func approxEqual(a, b Q16, tolerance Q16) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

func TestSinCosAtKeyAngles(t *testing.T) {
	tol := Q16(3000) // generous tolerance for the Bhaskara I approximation
	cases := []struct {
		angle    Q16
		wantSin  Q16
		wantCos  Q16
	}{
		{0, 0, One},
		{HalfPi, One, 0},
		{Pi, 0, -One},
	}
	for _, c := range cases {
		if !approxEqual(Sin(c.angle), c.wantSin, tol) {
			t.Errorf("Sin(%d) = %d, want ~%d", c.angle, Sin(c.angle), c.wantSin)
		}
		if !approxEqual(Cos(c.angle), c.wantCos, tol) {
			t.Errorf("Cos(%d) = %d, want ~%d", c.angle, Cos(c.angle), c.wantCos)
		}
	}
}

func TestWrapPiRange(t *testing.T) {
	for _, a := range []Q16{TwoPi * 3, -TwoPi * 2, Pi + 1, -Pi - 1} {
		w := WrapPi(a)
		if w > Pi || w <= -Pi {
			t.Errorf("WrapPi(%d) = %d out of (-π,π]", a, w)
		}
	}
}

func TestSqrtMatchesIntegerSquares(t *testing.T) {
	for _, n := range []int{0, 1, 4, 9, 16, 10000, 999999} {
		q := FromInt(n)
		root := Sqrt(q)
		want := FromInt(0)
		for i := 0; i*i <= n; i++ {
			want = FromInt(i)
		}
		// allow a one-unit rounding slack
		if root.Abs().Sub(want.Abs()).ToInt() > 1 {
			t.Errorf("Sqrt(%d) = %d (%.4f), want near %d", n, root, float64(root)/float64(One), want)
		}
	}
}

func TestSqrtIntExact(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 4: 2, 9: 3, 100: 10, 10000: 100}
	for n, want := range cases {
		if got := SqrtInt(n); got != want {
			t.Errorf("SqrtInt(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestMulDivRoundTrip(t *testing.T) {
	a := FromInt(3)
	b := FromRatio(1, 2)
	got := a.Mul(b)
	if got.Round() != 2 && got.Round() != 1 {
		t.Errorf("3 * 0.5 = %.4f, want ~1.5", float64(got)/float64(One))
	}
	if back := got.Div(b); back != a {
		t.Errorf("(3 * 0.5) / 0.5 = %.4f, want 3", float64(back)/float64(One))
	}
}
