package frames

import "math"

// Hysteresis thresholds on the L1 gradient magnitude.
const (
	cannyLow  = 50
	cannyHigh = 150
)

var gaussian5 = [5][5]float32{
	{2, 4, 5, 4, 2},
	{4, 9, 12, 9, 4},
	{5, 12, 15, 12, 5},
	{4, 9, 12, 9, 4},
	{2, 4, 5, 4, 2},
}

const gaussian5Sum = 159

var tan22 = float32(math.Tan(math.Pi / 8))
var tan67 = float32(math.Tan(3 * math.Pi / 8))

// canny returns a w*h edge map with 255 on edges and 0 elsewhere.
func canny(pix []uint8, w, h int) []uint8 {
	edges := make([]uint8, w*h)
	if w < 3 || h < 3 {
		return edges
	}
	blurred := blur(pix, w, h)

	gx := make([]float32, w*h)
	gy := make([]float32, w*h)
	mag := make([]float32, w*h)
	at := func(x, y int) float32 { return blurred[clamp(y, h)*w+clamp(x, w)] }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs32(dx) + abs32(dy)
		}
	}

	// Non-maximum suppression. 1 marks weak candidates, 2 strong ones.
	class := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= cannyLow {
				continue
			}
			ax, ay := abs32(gx[i]), abs32(gy[i])
			var n1, n2 float32
			switch {
			case ay <= ax*tan22:
				n1, n2 = mag[i-1], mag[i+1]
			case ay >= ax*tan67:
				n1, n2 = mag[i-w], mag[i+w]
			case gx[i]*gy[i] > 0:
				n1, n2 = mag[i-w-1], mag[i+w+1]
			default:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			}
			if m <= n1 || m < n2 {
				continue
			}
			if m > cannyHigh {
				class[i] = 2
			} else {
				class[i] = 1
			}
		}
	}

	// Hysteresis: grow strong pixels through 8-connected weak ones.
	stack := make([]int, 0, 64)
	for i, c := range class {
		if c == 2 {
			edges[i] = 255
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if class[j] == 1 && edges[j] == 0 {
					edges[j] = 255
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

func blur(pix []uint8, w, h int) []float32 {
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for ky := -2; ky <= 2; ky++ {
				row := clamp(y+ky, h) * w
				for kx := -2; kx <= 2; kx++ {
					sum += gaussian5[ky+2][kx+2] * float32(pix[row+clamp(x+kx, w)])
				}
			}
			out[y*w+x] = sum / gaussian5Sum
		}
	}
	return out
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
