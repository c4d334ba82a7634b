package train

import "gonum.org/v1/gonum/floats"

// History is the loss record of a run, kept across resumes.
type History struct {
	Iteration   int             // completed iterations
	Epoch       float64         // Iteration / batches per epoch
	TrainLosses []float32       // TrainLosses[i-1] is the loss of iteration i
	ValLosses   map[int]float32 // iteration -> validation loss
	ValLoss     float32         // latest validation loss
}

// RecordTrain appends the training loss of iteration.
func (h *History) RecordTrain(iteration int, epoch float64, loss float32) {
	h.Iteration = iteration
	h.Epoch = epoch
	h.TrainLosses = append(h.TrainLosses, loss)
}

// RecordVal stores the validation loss measured after iteration.
func (h *History) RecordVal(iteration int, loss float32) {
	if h.ValLosses == nil {
		h.ValLosses = make(map[int]float32)
	}
	h.ValLosses[iteration] = loss
	h.ValLoss = loss
}

// MeanTrainLoss averages the last n training losses (all of them if n <= 0).
func (h *History) MeanTrainLoss(n int) float32 {
	losses := h.TrainLosses
	if n > 0 && n < len(losses) {
		losses = losses[len(losses)-n:]
	}
	if len(losses) == 0 {
		return 0
	}
	return float32(mean(losses))
}

func mean(values []float32) float64 {
	buf := make([]float64, len(values))
	for i, v := range values {
		buf[i] = float64(v)
	}
	return floats.Sum(buf) / float64(len(buf))
}
