package rnn

import (
	"math/rand"

	"github.com/born-ml/charrnn/internal/autodiff"
	"github.com/born-ml/charrnn/internal/nn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// layer is one recurrent layer. Layers hold parameters only; activations live
// on the tape of the cell that runs them, so one layer can serve every clone.
type layer interface {
	// step maps (input, prev states) to (output h, next states).
	step(ad *autodiff.Backend, x *tensor.RawTensor, prev []*tensor.RawTensor) (*tensor.RawTensor, []*tensor.RawTensor)
	parameters() []*nn.Parameter
	initialize(rng *rand.Rand)
}

// initLinear draws the weight uniformly and zeroes the bias.
func initLinear(l *nn.Linear, rng *rand.Rand) {
	nn.Uniform(l.Weight().Tensor(), initRange, rng)
	if b := l.Bias(); b != nil {
		b.Tensor().Zero()
	}
}

// lstmLayer: one linear map of [x; h] to 4H pre-activations split as
// (input, forget, output, candidate).
//
//	c = f*c_prev + i*g
//	h = o*tanh(c)
type lstmLayer struct {
	hidden int
	gates  *nn.Linear // [4H, in+H]
}

func newLSTMLayer(name string, in, hidden int, device tensor.Device) *lstmLayer {
	return &lstmLayer{
		hidden: hidden,
		gates:  nn.NewLinear(name+".gates", in+hidden, 4*hidden, true, device),
	}
}

func (l *lstmLayer) step(ad *autodiff.Backend, x *tensor.RawTensor, prev []*tensor.RawTensor) (*tensor.RawTensor, []*tensor.RawTensor) {
	cPrev, hPrev := prev[0], prev[1]

	pre := l.gates.Forward(ad, ad.Cat(x, hPrev))
	blocks := ad.Chunk(pre, 4)
	i := ad.Sigmoid(blocks[0])
	f := ad.Sigmoid(blocks[1])
	o := ad.Sigmoid(blocks[2])
	g := ad.Tanh(blocks[3])

	c := ad.Add(ad.Mul(f, cPrev), ad.Mul(i, g))
	h := ad.Mul(o, ad.Tanh(c))
	return h, []*tensor.RawTensor{c, h}
}

func (l *lstmLayer) parameters() []*nn.Parameter {
	return l.gates.Parameters()
}

func (l *lstmLayer) initialize(rng *rand.Rand) {
	initLinear(l.gates, rng)
	// Forget gate starts open.
	nn.FillRange(l.gates.Bias().Tensor(), l.hidden, 2*l.hidden, 1)
}

// gruLayer: reset and update gates from [x; h], candidate from x and r*h.
//
//	n = tanh(Wx x + Wh (r*h_prev) + b)
//	h = z*h_prev + (1-z)*n
type gruLayer struct {
	gates *nn.Linear // [2H, in+H]
	candX *nn.Linear // [H, in] with bias
	candH *nn.Linear // [H, H] without bias
}

func newGRULayer(name string, in, hidden int, device tensor.Device) *gruLayer {
	return &gruLayer{
		gates: nn.NewLinear(name+".gates", in+hidden, 2*hidden, true, device),
		candX: nn.NewLinear(name+".cand_x", in, hidden, true, device),
		candH: nn.NewLinear(name+".cand_h", hidden, hidden, false, device),
	}
}

func (l *gruLayer) step(ad *autodiff.Backend, x *tensor.RawTensor, prev []*tensor.RawTensor) (*tensor.RawTensor, []*tensor.RawTensor) {
	hPrev := prev[0]

	blocks := ad.Chunk(l.gates.Forward(ad, ad.Cat(x, hPrev)), 2)
	r := ad.Sigmoid(blocks[0])
	z := ad.Sigmoid(blocks[1])

	n := ad.Tanh(ad.Add(l.candX.Forward(ad, x), l.candH.Forward(ad, ad.Mul(r, hPrev))))
	h := ad.Add(ad.Mul(z, hPrev), ad.Mul(ad.OneMinus(z), n))
	return h, []*tensor.RawTensor{h}
}

func (l *gruLayer) parameters() []*nn.Parameter {
	params := l.gates.Parameters()
	params = append(params, l.candX.Parameters()...)
	return append(params, l.candH.Parameters()...)
}

func (l *gruLayer) initialize(rng *rand.Rand) {
	initLinear(l.gates, rng)
	initLinear(l.candX, rng)
	initLinear(l.candH, rng)
}

// vanillaLayer: h = tanh(W [x; h_prev] + b).
type vanillaLayer struct {
	proj *nn.Linear // [H, in+H]
}

func newVanillaLayer(name string, in, hidden int, device tensor.Device) *vanillaLayer {
	return &vanillaLayer{proj: nn.NewLinear(name+".proj", in+hidden, hidden, true, device)}
}

func (l *vanillaLayer) step(ad *autodiff.Backend, x *tensor.RawTensor, prev []*tensor.RawTensor) (*tensor.RawTensor, []*tensor.RawTensor) {
	h := ad.Tanh(l.proj.Forward(ad, ad.Cat(x, prev[0])))
	return h, []*tensor.RawTensor{h}
}

func (l *vanillaLayer) parameters() []*nn.Parameter {
	return l.proj.Parameters()
}

func (l *vanillaLayer) initialize(rng *rand.Rand) {
	initLinear(l.proj, rng)
}
