// Package nn provides trainable parameters, the linear layer, initializers,
// parameter flattening, and the negative log-likelihood criterion used by the
// recurrent cells.
package nn

// Module is anything that owns trainable parameters.
//
// Forward signatures differ between layers (a recurrent cell takes states as
// well as input), so only parameter enumeration is shared.
type Module interface {
	// Parameters returns all trainable parameters, including those of nested
	// modules, in a stable order.
	Parameters() []*Parameter
}

// ModuleFunc adapts a parameter list to the Module interface.
type ModuleFunc func() []*Parameter

// Parameters calls f.
func (f ModuleFunc) Parameters() []*Parameter {
	return f()
}
