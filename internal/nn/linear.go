package nn

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/autodiff"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// x is [batch_size, in_features], W is [out_features, in_features],
// b is [out_features].
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter // nil when the layer has no bias
}

// NewLinear creates a Linear layer with zeroed weights; callers initialize
// them (see Uniform). Parameter names are prefixed with name.
func NewLinear(name string, inFeatures, outFeatures int, withBias bool, device tensor.Device) *Linear {
	l := &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", tensor.Zeros(tensor.Shape{outFeatures, inFeatures}, device)),
	}
	if withBias {
		l.bias = NewParameter(name+".bias", tensor.Zeros(tensor.Shape{outFeatures}, device))
	}
	return l
}

// Forward computes x @ W.T + b, recording the operation on ad's tape.
func (l *Linear) Forward(ad *autodiff.Backend, x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected [batch, %d] input, got %v", l.inFeatures, shape))
	}
	var b *tensor.RawTensor
	if l.bias != nil {
		b = l.bias.Tensor()
	}
	return ad.Linear(x, l.weight.Tensor(), b)
}

// Parameters returns [weight, bias], or [weight] without bias.
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter (nil without bias).
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
