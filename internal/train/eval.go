package train

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Evaluate returns the mean loss over every batch of split with dropout off.
//
// The split is read from its first batch, starting from a zero state that is
// carried from batch to batch. The training state of the session is not
// touched. ok is false when the split has no batches.
func (s *Session) Evaluate(loader *corpus.Loader, split corpus.Split) (loss float32, ok bool, err error) {
	n := loader.SplitSize(split)
	if n == 0 {
		return 0, false, nil
	}
	loader.ResetCursor(split)
	defer loader.ResetCursor(split)

	cell := s.clones[0]
	states := s.proto.ZeroState(s.cfg.BatchSize)
	losses := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		batch, _, _ := loader.NextBatch(split)
		if batch.BatchSize() != s.cfg.BatchSize {
			return 0, true, fmt.Errorf("%w: %s batch %d has %d rows", ErrBatchShape, split, i, batch.BatchSize())
		}
		var batchLoss float32
		batchLoss, states = s.evalBatch(cell, batch, states)
		losses = append(losses, batchLoss)
	}

	loss = float32(mean(losses))
	if !finite(loss) {
		return loss, true, fmt.Errorf("%w: %s loss %v", ErrNumericalDivergence, split, loss)
	}
	return loss, true, nil
}

func (s *Session) evalBatch(cell rnn.Cell, batch corpus.Batch, states []*tensor.RawTensor) (float32, []*tensor.RawTensor) {
	var total float64
	for t := range batch.Inputs {
		x := rnn.OneHot(batch.Inputs[t], s.vocab.Size(), s.backend.Device())
		var logProbs *tensor.RawTensor
		states, logProbs = cell.Forward(x, states, false)
		total += float64(s.loss.Forward(logProbs, batch.Targets[t]))
	}
	return float32(total / float64(batch.SeqLength())), states
}
