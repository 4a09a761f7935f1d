package payload

// GF(2^8) arithmetic over the primitive polynomial x^8+x^4+x^3+x^2+1.
const primitive = 0x11d

// The tables are built by a var initializer rather than init() so that the
// package-level codes in frame.go, which read them, are ordered after them.
var gfExp, gfLog = buildTables()

func buildTables() (exp [512]byte, log [256]int) {
	x := 1
	for i := 0; i < 255; i++ {
		exp[i] = byte(x)
		log[x] = i
		x <<= 1
		if x&0x100 != 0 {
			x ^= primitive
		}
	}
	for i := 255; i < len(exp); i++ {
		exp[i] = exp[i-255]
	}
	return exp, log
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[gfLog[a]+gfLog[b]]
}

// gfDiv panics on division by zero; callers guard b.
func gfDiv(a, b byte) byte {
	if b == 0 {
		panic("payload: gf division by zero")
	}
	if a == 0 {
		return 0
	}
	return gfExp[(gfLog[a]+255-gfLog[b])%255]
}

// gfPow returns alpha^n for any integer n.
func gfPow(n int) byte {
	n %= 255
	if n < 0 {
		n += 255
	}
	return gfExp[n]
}

func gfInv(a byte) byte {
	return gfExp[255-gfLog[a]]
}

// evalLittle evaluates p (p[i] is the x^i coefficient) at x.
func evalLittle(p []byte, x byte) byte {
	var y byte
	for i := len(p) - 1; i >= 0; i-- {
		y = gfMul(y, x) ^ p[i]
	}
	return y
}

// evalBig evaluates p (p[0] is the highest degree coefficient) at x.
func evalBig(p []byte, x byte) byte {
	var y byte
	for _, c := range p {
		y = gfMul(y, x) ^ c
	}
	return y
}
