package training

import (
	"github.com/tsawler/go-vocoder/tensor"
)

// ReluError computes mean(relu(target - pred)), the one-sided hinge
// used by both adversarial losses. It only penalizes predictions that
// fall short of the target: ReluError(1, ones) == 0,
// ReluError(1, zeros) == 1, ReluError(0, positives) == 0.
func ReluError(target float32, pred *tensor.Tensor) *tensor.Tensor {
	targetT, err := tensor.Full(pred.Shape, target)
	if err != nil {
		panic(err)
	}
	diff := tensor.SubAutograd(targetT, pred)
	return tensor.MeanAutograd(tensor.ReLUAutograd(diff))
}

// MAEError computes the mean absolute error between two tensors.
func MAEError(a, b *tensor.Tensor) *tensor.Tensor {
	return tensor.MeanAutograd(tensor.AbsAutograd(tensor.SubAutograd(a, b)))
}

// addLoss accumulates scalar loss terms, treating a nil accumulator as zero.
func addLoss(acc, term *tensor.Tensor) *tensor.Tensor {
	if acc == nil {
		return term
	}
	return tensor.AddAutograd(acc, term)
}
