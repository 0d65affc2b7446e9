package audio

import "math"

// fft is an in-place radix-2 Cooley-Tukey transform. len(x) must be a
// power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wl := complex(math.Cos(ang), math.Sin(ang))
		for i := 0; i < n; i += length {
			w := complex(1, 0)
			half := length / 2
			for j := 0; j < half; j++ {
				u := x[i+j]
				v := x[i+j+half] * w
				x[i+j] = u + v
				x[i+j+half] = u - v
				w *= wl
			}
		}
	}
}

// meanMagnitude returns the arithmetic mean of the scaled magnitude
// spectrum of one analysis window. Samples are normalized to [-1, 1] and
// magnitudes scaled by 2/window, so a full-scale bin-centered sine
// contributes roughly its amplitude to a single bin. Frames shorter than
// the window are zero-padded, longer ones truncated.
func meanMagnitude(frame []int16, window int) float64 {
	x := make([]complex128, window)
	for i := 0; i < window && i < len(frame); i++ {
		x[i] = complex(float64(frame[i])/32768.0, 0)
	}
	fft(x)

	bins := window / 2
	sum := 0.0
	for k := 0; k < bins; k++ {
		re := real(x[k])
		im := imag(x[k])
		sum += 2 * math.Sqrt(re*re+im*im) / float64(window)
	}
	return sum / float64(bins)
}
