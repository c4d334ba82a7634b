package optim

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/charrnn/internal/nn"
)

// GradNorm returns the L2 norm of the whole gradient vector.
func GradNorm(flat *nn.FlatParams) float32 {
	g := flat.Grads()
	return blas32.Nrm2(blas32.Vector{N: len(g), Data: g, Inc: 1})
}

// ClipGradNorm rescales the gradient vector so its L2 norm is at most maxNorm.
//
// Returns the norm before clipping and whether the gradients were scaled.
// A non-finite norm is returned untouched so the caller can abort.
func ClipGradNorm(flat *nn.FlatParams, maxNorm float32) (norm float32, clipped bool) {
	norm = GradNorm(flat)
	if maxNorm <= 0 || !(norm > maxNorm) || math.IsInf(float64(norm), 0) {
		return norm, false
	}
	g := flat.Grads()
	blas32.Scal(maxNorm/norm, blas32.Vector{N: len(g), Data: g, Inc: 1})
	return norm, true
}
