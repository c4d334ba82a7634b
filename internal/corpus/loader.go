package corpus

import (
	"errors"
	"fmt"
	"math"
	"os"
)

// Loader errors.
var (
	ErrTooSmall         = errors.New("corpus: too small for one batch")
	ErrInvalidFractions = errors.New("corpus: invalid split fractions")
)

// Split names a partition of the batches.
type Split int

// Batch partitions, in file order.
const (
	Train Split = iota
	Val
	Test
)

// String returns the split name.
func (s Split) String() string {
	switch s {
	case Train:
		return "train"
	case Val:
		return "val"
	case Test:
		return "test"
	default:
		return "unknown"
	}
}

// Fractions assigns batches to splits. Test gets 1 - Train - Val.
type Fractions struct {
	Train float64
	Val   float64
}

// Validate checks that the fractions are usable.
func (f Fractions) Validate() error {
	if f.Train <= 0 || f.Train > 1 || f.Val < 0 || f.Train+f.Val > 1+1e-9 {
		return fmt.Errorf("%w: train %v, val %v", ErrInvalidFractions, f.Train, f.Val)
	}
	return nil
}

// Test returns the test fraction.
func (f Fractions) Test() float64 {
	return math.Max(0, 1-f.Train-f.Val)
}

// Batch is one minibatch, laid out timestep-major: Inputs[t][b] is the input
// id of stream b at step t and Targets[t][b] the id that follows it.
type Batch struct {
	Inputs  [][]int32
	Targets [][]int32
}

// SeqLength returns the number of timesteps.
func (b Batch) SeqLength() int {
	return len(b.Inputs)
}

// BatchSize returns the number of parallel streams.
func (b Batch) BatchSize() int {
	if len(b.Inputs) == 0 {
		return 0
	}
	return len(b.Inputs[0])
}

// Loader serves minibatches of an encoded corpus.
type Loader struct {
	vocab     *Vocab
	batchSize int
	seqLength int
	batches   []Batch
	splits    [3][]Batch
	cursors   [3]int
}

// Load reads a UTF-8 text file and prepares its batches.
func Load(path string, batchSize, seqLength int, fracs Fractions) (*Loader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}
	return LoadString(string(data), batchSize, seqLength, fracs)
}

// LoadString prepares batches from text held in memory.
func LoadString(text string, batchSize, seqLength int, fracs Fractions) (*Loader, error) {
	if batchSize <= 0 || seqLength <= 0 {
		return nil, fmt.Errorf("corpus: batch size %d and sequence length %d must be positive", batchSize, seqLength)
	}
	if err := fracs.Validate(); err != nil {
		return nil, err
	}

	vocab := NewVocab(text)
	ids, err := vocab.Encode(text)
	if err != nil {
		return nil, err
	}

	window := batchSize * seqLength
	n := len(ids) - len(ids)%window
	if n == 0 {
		return nil, fmt.Errorf("%w: %d characters, need at least %d (batch_size x seq_length)",
			ErrTooSmall, len(ids), window)
	}

	// Targets are the inputs shifted by one; the last wraps to the first.
	x := ids[:n]
	y := make([]int32, n)
	copy(y, ids[1:n])
	y[n-1] = ids[0]

	l := &Loader{vocab: vocab, batchSize: batchSize, seqLength: seqLength}
	l.batches = makeBatches(x, y, batchSize, seqLength)
	l.assignSplits(fracs)
	return l, nil
}

// makeBatches views x and y as batchSize rows and cuts the columns into
// seqLength-wide chunks.
func makeBatches(x, y []int32, batchSize, seqLength int) []Batch {
	cols := len(x) / batchSize
	count := cols / seqLength
	batches := make([]Batch, count)
	for k := range batches {
		b := Batch{
			Inputs:  make([][]int32, seqLength),
			Targets: make([][]int32, seqLength),
		}
		for t := 0; t < seqLength; t++ {
			col := k*seqLength + t
			b.Inputs[t] = make([]int32, batchSize)
			b.Targets[t] = make([]int32, batchSize)
			for row := 0; row < batchSize; row++ {
				b.Inputs[t][row] = x[row*cols+col]
				b.Targets[t][row] = y[row*cols+col]
			}
		}
		batches[k] = b
	}
	return batches
}

// assignSplits gives the first batches to train, then val, then test.
func (l *Loader) assignSplits(fracs Fractions) {
	total := len(l.batches)
	ntrain := int(math.Floor(float64(total) * fracs.Train))
	ntest := int(math.Floor(float64(total) * fracs.Test()))
	if ntrain == 0 {
		ntrain = 1
	}
	if ntrain+ntest > total {
		ntest = total - ntrain
	}
	nval := total - ntrain - ntest

	l.splits[Train] = l.batches[:ntrain]
	l.splits[Val] = l.batches[ntrain : ntrain+nval]
	l.splits[Test] = l.batches[ntrain+nval:]
}

// Vocab returns the corpus vocabulary.
func (l *Loader) Vocab() *Vocab {
	return l.vocab
}

// BatchSize returns the number of parallel streams per batch.
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// SeqLength returns the number of timesteps per batch.
func (l *Loader) SeqLength() int {
	return l.seqLength
}

// NumBatches returns the total number of batches across all splits.
func (l *Loader) NumBatches() int {
	return len(l.batches)
}

// SplitSize returns the number of batches in split.
func (l *Loader) SplitSize(split Split) int {
	return len(l.splits[split])
}

// NextBatch returns the next batch of split and advances its cursor.
// wrapped is true when the cursor started over at the first batch; it is
// false for the very first call. ok is false for an empty split.
func (l *Loader) NextBatch(split Split) (b Batch, wrapped, ok bool) {
	batches := l.splits[split]
	if len(batches) == 0 {
		return Batch{}, false, false
	}
	if l.cursors[split] >= len(batches) {
		l.cursors[split] = 0
		wrapped = true
	}
	b = batches[l.cursors[split]]
	l.cursors[split]++
	return b, wrapped, true
}

// ResetCursor restarts split at its first batch.
func (l *Loader) ResetCursor(split Split) {
	l.cursors[split] = 0
}

// Cursor returns the index of the next batch of split.
func (l *Loader) Cursor(split Split) int {
	return l.cursors[split] % max(len(l.splits[split]), 1)
}

// SetCursor positions split at batch index i (modulo the split size).
// Used when resuming mid-epoch.
func (l *Loader) SetCursor(split Split, i int) {
	if n := len(l.splits[split]); n > 0 {
		l.cursors[split] = i % n
	}
}
