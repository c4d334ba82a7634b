package nn

import (
	"math/rand"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Uniform fills t with values drawn from U(-bound, bound).
func Uniform(t *tensor.RawTensor, bound float64, rng *rand.Rand) {
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// FillRange sets elements [start, end) of a 1D tensor to value.
// Used to give the LSTM forget gate its initial bias.
func FillRange(t *tensor.RawTensor, start, end int, value float32) {
	data := t.AsFloat32()[start:end]
	for i := range data {
		data[i] = value
	}
}
