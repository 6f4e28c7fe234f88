package engine

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// conv2D lowers the input to an im2col matrix and multiplies it by the
// [outC, inC*k*k] kernel matrix. Shapes include the batch dimension.
func conv2D(x []float64, in, out []int, weights, bias []float64, kernel, stride, padding int) []float64 {
	channels, height, width := in[1], in[2], in[3]
	outC, outH, outW := out[1], out[2], out[3]
	plane := outH * outW
	patch := channels * kernel * kernel

	cols := make([]float64, patch*plane)
	for c := 0; c < channels; c++ {
		for ky := 0; ky < kernel; ky++ {
			for kx := 0; kx < kernel; kx++ {
				row := cols[((c*kernel+ky)*kernel+kx)*plane:][:plane]
				for oy := 0; oy < outH; oy++ {
					iy := oy*stride + ky - padding
					if iy < 0 || iy >= height {
						continue
					}
					src := x[(c*height+iy)*width:][:width]
					for ox := 0; ox < outW; ox++ {
						ix := ox*stride + kx - padding
						if ix >= 0 && ix < width {
							row[oy*outW+ox] = src[ix]
						}
					}
				}
			}
		}
	}

	result := make([]float64, outC*plane)
	dst := mat.NewDense(outC, plane, result)
	dst.Mul(mat.NewDense(outC, patch, weights), mat.NewDense(patch, plane, cols))
	for o, b := range bias {
		floats.AddConst(b, result[o*plane:(o+1)*plane])
	}
	return result
}

// dense computes x·W + b with W stored as [in, out].
func dense(x, weights, bias []float64) []float64 {
	in := len(x)
	out := len(weights) / in
	result := make([]float64, out)
	y := mat.NewVecDense(out, result)
	y.MulVec(mat.NewDense(in, out, weights).T(), mat.NewVecDense(in, x))
	if bias != nil {
		floats.Add(result, bias)
	}
	return result
}

func maxPool2D(x []float64, in, out []int, poolSize, stride int) []float64 {
	channels, height, width := in[1], in[2], in[3]
	outH, outW := out[2], out[3]
	result := make([]float64, channels*outH*outW)
	for c := 0; c < channels; c++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				best := math.Inf(-1)
				for py := 0; py < poolSize; py++ {
					row := x[(c*height+oy*stride+py)*width:]
					for px := 0; px < poolSize; px++ {
						if v := row[ox*stride+px]; v > best {
							best = v
						}
					}
				}
				result[(c*outH+oy)*outW+ox] = best
			}
		}
	}
	return result
}

// batchNorm normalises each channel in place with the running statistics.
func batchNorm(x []float64, in []int, st *layerState, eps float64) {
	channels := in[1]
	spatial := volume(in[2:])
	for c := 0; c < channels; c++ {
		scale := st.weights[c] / math.Sqrt(st.runningVar[c]+eps)
		shift := st.bias[c] - st.runningMean[c]*scale
		seg := x[c*spatial : (c+1)*spatial]
		floats.Scale(scale, seg)
		floats.AddConst(shift, seg)
	}
}

func leakyReLU(x []float64, slope float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = v * slope
		}
	}
}

func elu(x []float64, alpha float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = alpha * math.Expm1(v)
		}
	}
}

// softmax converts scores to probabilities in place.
func softmax(x []float64) {
	maxScore := floats.Max(x)
	sum := 0.0
	for i, v := range x {
		x[i] = math.Exp(v - maxScore)
		sum += x[i]
	}
	floats.Scale(1/sum, x)
}
