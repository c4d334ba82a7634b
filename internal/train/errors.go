package train

import "errors"

// Errors returned by the training loop. All of them end the run.
var (
	// ErrNumericalDivergence reports a NaN or infinite loss or gradient norm.
	// It is returned before the parameters are updated.
	ErrNumericalDivergence = errors.New("train: loss or gradient is not finite")

	// ErrLossExploding reports a training loss above three times the first
	// loss of the run.
	ErrLossExploding = errors.New("train: loss is exploding")

	// ErrVocabMismatch reports a checkpoint whose vocabulary differs from the
	// corpus being trained on.
	ErrVocabMismatch = errors.New("train: checkpoint vocabulary does not match the corpus")

	// ErrBatchShape reports a minibatch that does not fit the unrolled clones.
	ErrBatchShape = errors.New("train: batch does not match sequence length or batch size")

	// ErrInvalidCheckpoint reports a checkpoint that cannot be restored.
	ErrInvalidCheckpoint = errors.New("train: invalid checkpoint")
)
