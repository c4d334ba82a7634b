package optim

// Decay multiplies the learning rate by Rate at every epoch boundary once
// the epoch count reaches After.
type Decay struct {
	Rate  float32 // factor per epoch; 1 disables decay
	After int     // first epoch that decays
}

// Enabled reports whether the schedule ever changes the rate.
func (d Decay) Enabled() bool {
	return d.Rate > 0 && d.Rate < 1
}

// Apply decays opt's learning rate if epoch is due. epoch is the number of
// completed epochs. Returns the new rate and whether it changed.
func (d Decay) Apply(opt Optimizer, epoch int) (float32, bool) {
	if !d.Enabled() || epoch < d.After {
		return opt.GetLR(), false
	}
	lr := opt.GetLR() * d.Rate
	opt.SetLR(lr)
	return lr, true
}
