package payload

import "errors"

// errTooManyErrors is internal; the frame layer maps it to symbol.ErrUncorrectable.
var errTooManyErrors = errors.New("payload: too many errors in codeword")

// rsCode is a systematic Reed-Solomon code with nsym parity bytes, whose
// generator has the consecutive roots alpha^0 .. alpha^(nsym-1). It corrects
// up to nsym/2 byte errors per codeword of at most 255 bytes.
type rsCode struct {
	nsym int
	gen  []byte // big-endian, monic
}

func newRSCode(nsym int) *rsCode {
	gen := []byte{1}
	for i := 0; i < nsym; i++ {
		next := make([]byte, len(gen)+1)
		root := gfPow(i)
		for j, c := range gen {
			next[j] ^= c
			next[j+1] ^= gfMul(c, root)
		}
		gen = next
	}
	return &rsCode{nsym: nsym, gen: gen}
}

// encode returns data followed by its parity bytes.
func (c *rsCode) encode(data []byte) []byte {
	buf := make([]byte, len(data)+c.nsym)
	copy(buf, data)
	for i := range data {
		coef := buf[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(c.gen); j++ {
			buf[i+j] ^= gfMul(c.gen[j], coef)
		}
	}
	copy(buf, data)
	return buf
}

func (c *rsCode) syndromes(cw []byte) ([]byte, bool) {
	synd := make([]byte, c.nsym)
	clean := true
	for i := range synd {
		synd[i] = evalBig(cw, gfPow(i))
		if synd[i] != 0 {
			clean = false
		}
	}
	return synd, clean
}

// correct repairs cw in place and returns the number of corrected bytes.
func (c *rsCode) correct(cw []byte) (int, error) {
	synd, clean := c.syndromes(cw)
	if clean {
		return 0, nil
	}

	// Berlekamp-Massey; locator and scratch polynomials are little-endian.
	loc := make([]byte, c.nsym+1)
	prev := make([]byte, c.nsym+1)
	loc[0], prev[0] = 1, 1
	l, m, b := 0, 1, byte(1)
	for n := 0; n < c.nsym; n++ {
		d := synd[n]
		for i := 1; i <= l; i++ {
			d ^= gfMul(loc[i], synd[n-i])
		}
		if d == 0 {
			m++
			continue
		}
		coef := gfDiv(d, b)
		if 2*l <= n {
			saved := append([]byte(nil), loc...)
			for i := 0; i+m < len(loc); i++ {
				loc[i+m] ^= gfMul(coef, prev[i])
			}
			l = n + 1 - l
			prev, b, m = saved, d, 1
		} else {
			for i := 0; i+m < len(loc); i++ {
				loc[i+m] ^= gfMul(coef, prev[i])
			}
			m++
		}
	}
	if 2*l > c.nsym {
		return 0, errTooManyErrors
	}
	loc = loc[:l+1]

	// Chien search over the (possibly shortened) codeword positions.
	n := len(cw)
	var positions []int
	for deg := 0; deg < n; deg++ {
		if evalLittle(loc, gfPow(-deg)) == 0 {
			positions = append(positions, deg)
		}
	}
	if len(positions) != l {
		return 0, errTooManyErrors
	}

	// Forney: omega = S(x)*loc(x) mod x^nsym, e_k = X_k * omega(X_k^-1) / loc'(X_k^-1).
	omega := make([]byte, c.nsym)
	for i := range omega {
		var v byte
		for j := 0; j <= i && j <= l; j++ {
			v ^= gfMul(loc[j], synd[i-j])
		}
		omega[i] = v
	}
	deriv := make([]byte, l)
	for i := 1; i <= l; i += 2 {
		deriv[i-1] = loc[i]
	}
	for _, deg := range positions {
		x := gfPow(deg)
		xInv := gfInv(x)
		den := evalLittle(deriv, xInv)
		if den == 0 {
			return 0, errTooManyErrors
		}
		cw[n-1-deg] ^= gfMul(x, gfDiv(evalLittle(omega, xInv), den))
	}

	if _, ok := c.syndromes(cw); !ok {
		return 0, errTooManyErrors
	}
	return l, nil
}
