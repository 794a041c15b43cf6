package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Matrix helpers shared by the model, optimizer and sampler.
// Column vectors are (n x 1) *mat.Dense throughout.

// RandomNormal returns an (r x c) matrix drawn from N(0, sigma^2).
func RandomNormal(r, c int, sigma float64, src rand.Source) *mat.Dense {
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	data := make([]float64, r*c)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(r, c, data)
}

func OneHot(n, idx int) *mat.Dense {
	v := make([]float64, n)
	if idx >= 0 && idx < n {
		v[idx] = 1.0
	}
	return mat.NewDense(n, 1, v)
}

func ZerosLike(a mat.Matrix) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

// ColumnData exposes the backing slice of an (n x 1) vector.
func ColumnData(v *mat.Dense) []float64 {
	raw := v.RawMatrix()
	if raw.Cols != 1 {
		panic("ColumnData expects a (r x 1) column vector")
	}
	if raw.Stride == 1 {
		return raw.Data[:raw.Rows]
	}
	out := make([]float64, raw.Rows)
	mat.Col(out, 0, v)
	return out
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// The max logit is subtracted first; the result is mathematically identical
// and cannot overflow.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// CrossEntropyWithIndex is -log(probs[gold]).
func CrossEntropyWithIndex(probs *mat.Dense, gold int) float64 {
	return -math.Log(probs.At(gold, 0))
}

// CrossEntropyGrad is the gradient of softmax+cross-entropy w.r.t. the
// logits: probs with 1 subtracted at gold.
func CrossEntropyGrad(probs *mat.Dense, gold int) *mat.Dense {
	grad := mat.DenseCopyOf(probs)
	grad.Set(gold, 0, grad.At(gold, 0)-1.0)
	return grad
}

// TanhPrimeFromOutput computes (1 - h^2) * upstream elementwise.
func TanhPrimeFromOutput(h, upstream *mat.Dense) *mat.Dense {
	out := ZerosLike(h)
	out.Apply(func(i, j int, v float64) float64 {
		return (1 - v*v) * upstream.At(i, j)
	}, h)
	return out
}

// ClipInPlace bounds every element of every matrix to [-limit, limit].
func ClipInPlace(limit float64, ms ...*mat.Dense) {
	for _, m := range ms {
		if m == nil {
			continue
		}
		m.Apply(func(_, _ int, v float64) float64 {
			return math.Max(-limit, math.Min(limit, v))
		}, m)
	}
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b mat.Matrix) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

// Normalize rescales weights in place to sum to one. It returns false when
// the weights sum to zero.
func Normalize(w []float64) bool {
	sum := floats.Sum(w)
	if sum <= 0 {
		return false
	}
	floats.Scale(1/sum, w)
	return true
}
