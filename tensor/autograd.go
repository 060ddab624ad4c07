package tensor

import (
	"fmt"
)

// AddOp implements the Operation interface for tensor addition
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := Add(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	// Gradient flows unchanged to both inputs.
	gradA, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

// SubOp implements the Operation interface for tensor subtraction
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SubOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := Sub(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	// ∂(a - b)/∂a = 1, ∂(a - b)/∂b = -1
	gradA, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := Neg(gradOut)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

// MulOp implements the Operation interface for elementwise multiplication
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}

	a, b := inputs[0], inputs[1]
	op.inputs = inputs

	result, err := Mul(a, b)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad || b.requiresGrad

	return result
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// ∂(a * b)/∂a = b, ∂(a * b)/∂b = a
	gradA, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

// ScaleOp multiplies a tensor by a constant scalar
type ScaleOp struct {
	inputs []*Tensor
	factor float32
}

func (op *ScaleOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ScaleOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Scale(a, op.factor)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *ScaleOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := Scale(gradOut, op.factor)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *ScaleOp) Inputs() []*Tensor { return op.inputs }

// AbsOp implements elementwise absolute value
type AbsOp struct {
	inputs []*Tensor
}

func (op *AbsOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("AbsOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Abs(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *AbsOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	// ∂|x|/∂x = sign(x); zero at x == 0
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	inputData := a.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		switch {
		case inputData[i] < 0:
			gradData[i] = -gradData[i]
		case inputData[i] == 0:
			gradData[i] = 0
		}
	}
	return []*Tensor{grad}
}

func (op *AbsOp) Inputs() []*Tensor { return op.inputs }

// ReLUOp implements the Operation interface for ReLU activation
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReLUOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := ReLU(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	// ∂ReLU(x)/∂x = 1 if x > 0, else 0
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	inputData := a.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		if inputData[i] <= 0 {
			gradData[i] = 0
		}
	}
	return []*Tensor{grad}
}

func (op *ReLUOp) Inputs() []*Tensor { return op.inputs }

// LeakyReLUOp implements leaky ReLU with a configurable negative slope
type LeakyReLUOp struct {
	inputs []*Tensor
	alpha  float32
}

func (op *LeakyReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("LeakyReLUOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := LeakyReLU(a, op.alpha)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *LeakyReLUOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	inputData := a.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		if inputData[i] <= 0 {
			gradData[i] *= op.alpha
		}
	}
	return []*Tensor{grad}
}

func (op *LeakyReLUOp) Inputs() []*Tensor { return op.inputs }

// TanhOp implements the Operation interface for tanh activation
type TanhOp struct {
	inputs []*Tensor
	output *Tensor // stored for the backward pass
}

func (op *TanhOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("TanhOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Tanh(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	op.output = result
	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *TanhOp) Backward(gradOut *Tensor) []*Tensor {
	if op.output == nil {
		panic("TanhOp: output not stored for backward pass")
	}

	// ∂tanh(x)/∂x = 1 - tanh(x)^2
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	outData := op.output.Data.([]float32)
	gradData := grad.Data.([]float32)
	for i := range gradData {
		gradData[i] *= 1 - outData[i]*outData[i]
	}
	return []*Tensor{grad}
}

func (op *TanhOp) Inputs() []*Tensor { return op.inputs }

// MeanOp reduces a tensor to the mean of its elements
type MeanOp struct {
	inputs []*Tensor
}

func (op *MeanOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("MeanOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Mean(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *MeanOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	g := gradOut.Data.([]float32)[0] / float32(a.NumElems)
	grad, err := Full(a.Shape, g)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *MeanOp) Inputs() []*Tensor { return op.inputs }

// SumOp reduces a tensor to the sum of its elements
type SumOp struct {
	inputs []*Tensor
}

func (op *SumOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("SumOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := Sum(a)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *SumOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := Full(a.Shape, gradOut.Data.([]float32)[0])
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *SumOp) Inputs() []*Tensor { return op.inputs }

// ReshapeOp changes the view of a tensor without touching its data
type ReshapeOp struct {
	inputs   []*Tensor
	newShape []int
}

func (op *ReshapeOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReshapeOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := a.Reshape(op.newShape)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *ReshapeOp) Backward(gradOut *Tensor) []*Tensor {
	a := op.inputs[0]

	grad, err := gradOut.Reshape(a.Shape)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *ReshapeOp) Inputs() []*Tensor { return op.inputs }

// Conv1DOp wires Conv1D into the autograd graph. The bias input is
// optional; when absent only two gradients are produced.
type Conv1DOp struct {
	inputs []*Tensor
	stride int
	pad    int
}

func (op *Conv1DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("Conv1DOp requires 2 or 3 inputs (input, weight, optional bias)")
	}

	op.inputs = inputs
	var bias *Tensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}

	result, err := Conv1D(inputs[0], inputs[1], bias, op.stride, op.pad)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = false
	for _, in := range inputs {
		result.requiresGrad = result.requiresGrad || in.requiresGrad
	}

	return result
}

func (op *Conv1DOp) Backward(gradOut *Tensor) []*Tensor {
	hasBias := len(op.inputs) == 3
	gradX, gradW, gradB := conv1DBackward(op.inputs[0], op.inputs[1], hasBias, op.stride, op.pad, gradOut)
	if hasBias {
		return []*Tensor{gradX, gradW, gradB}
	}
	return []*Tensor{gradX, gradW}
}

func (op *Conv1DOp) Inputs() []*Tensor { return op.inputs }

// ConvTranspose1DOp wires ConvTranspose1D into the autograd graph
type ConvTranspose1DOp struct {
	inputs []*Tensor
	stride int
	pad    int
}

func (op *ConvTranspose1DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("ConvTranspose1DOp requires 2 or 3 inputs (input, weight, optional bias)")
	}

	op.inputs = inputs
	var bias *Tensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}

	result, err := ConvTranspose1D(inputs[0], inputs[1], bias, op.stride, op.pad)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = false
	for _, in := range inputs {
		result.requiresGrad = result.requiresGrad || in.requiresGrad
	}

	return result
}

func (op *ConvTranspose1DOp) Backward(gradOut *Tensor) []*Tensor {
	hasBias := len(op.inputs) == 3
	gradX, gradW, gradB := convTranspose1DBackward(op.inputs[0], op.inputs[1], hasBias, op.stride, op.pad, gradOut)
	if hasBias {
		return []*Tensor{gradX, gradW, gradB}
	}
	return []*Tensor{gradX, gradW}
}

func (op *ConvTranspose1DOp) Inputs() []*Tensor { return op.inputs }

// AvgPool1DOp wires AvgPool1D into the autograd graph
type AvgPool1DOp struct {
	inputs []*Tensor
	kernel int
	stride int
	pad    int
}

func (op *AvgPool1DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("AvgPool1DOp requires exactly 1 input")
	}

	a := inputs[0]
	op.inputs = inputs

	result, err := AvgPool1D(a, op.kernel, op.stride, op.pad)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = a.requiresGrad

	return result
}

func (op *AvgPool1DOp) Backward(gradOut *Tensor) []*Tensor {
	return []*Tensor{avgPool1DBackward(op.inputs[0], op.kernel, op.stride, op.pad, gradOut)}
}

func (op *AvgPool1DOp) Inputs() []*Tensor { return op.inputs }

// High-level autograd functions that create and execute operations

// AddAutograd performs addition with automatic differentiation
func AddAutograd(a, b *Tensor) *Tensor {
	op := &AddOp{}
	return op.Forward(a, b)
}

// SubAutograd performs subtraction with automatic differentiation
func SubAutograd(a, b *Tensor) *Tensor {
	op := &SubOp{}
	return op.Forward(a, b)
}

// MulAutograd performs elementwise multiplication with automatic differentiation
func MulAutograd(a, b *Tensor) *Tensor {
	op := &MulOp{}
	return op.Forward(a, b)
}

// ScaleAutograd multiplies by a constant with automatic differentiation
func ScaleAutograd(a *Tensor, factor float32) *Tensor {
	op := &ScaleOp{factor: factor}
	return op.Forward(a)
}

// AbsAutograd takes the elementwise absolute value with automatic differentiation
func AbsAutograd(a *Tensor) *Tensor {
	op := &AbsOp{}
	return op.Forward(a)
}

// ReLUAutograd performs ReLU activation with automatic differentiation
func ReLUAutograd(a *Tensor) *Tensor {
	op := &ReLUOp{}
	return op.Forward(a)
}

// LeakyReLUAutograd performs leaky ReLU activation with automatic differentiation
func LeakyReLUAutograd(a *Tensor, alpha float32) *Tensor {
	op := &LeakyReLUOp{alpha: alpha}
	return op.Forward(a)
}

// TanhAutograd performs tanh activation with automatic differentiation
func TanhAutograd(a *Tensor) *Tensor {
	op := &TanhOp{}
	return op.Forward(a)
}

// MeanAutograd reduces to the elementwise mean with automatic differentiation
func MeanAutograd(a *Tensor) *Tensor {
	op := &MeanOp{}
	return op.Forward(a)
}

// SumAutograd reduces to the elementwise sum with automatic differentiation
func SumAutograd(a *Tensor) *Tensor {
	op := &SumOp{}
	return op.Forward(a)
}

// ReshapeAutograd changes the tensor view with automatic differentiation
func ReshapeAutograd(a *Tensor, newShape []int) *Tensor {
	op := &ReshapeOp{newShape: newShape}
	return op.Forward(a)
}

// Conv1DAutograd performs a 1-D convolution with automatic differentiation
func Conv1DAutograd(input, weight, bias *Tensor, stride, pad int) *Tensor {
	op := &Conv1DOp{stride: stride, pad: pad}
	if bias != nil {
		return op.Forward(input, weight, bias)
	}
	return op.Forward(input, weight)
}

// ConvTranspose1DAutograd performs a transposed 1-D convolution with automatic differentiation
func ConvTranspose1DAutograd(input, weight, bias *Tensor, stride, pad int) *Tensor {
	op := &ConvTranspose1DOp{stride: stride, pad: pad}
	if bias != nil {
		return op.Forward(input, weight, bias)
	}
	return op.Forward(input, weight)
}

// AvgPool1DAutograd performs average pooling with automatic differentiation
func AvgPool1DAutograd(input *Tensor, kernel, stride, pad int) *Tensor {
	op := &AvgPool1DOp{kernel: kernel, stride: stride, pad: pad}
	return op.Forward(input)
}

// Backward runs reverse-mode differentiation from a scalar tensor,
// accumulating gradients into every reachable leaf that requires them.
// Repeated calls keep accumulating, so optimizers are expected to zero
// parameter gradients between steps.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("Backward requires a scalar tensor, got shape %v", t.Shape)
	}
	if t.DType != Float32 {
		return fmt.Errorf("Backward requires a Float32 tensor, got %s", t.DType)
	}

	// Topological order over the creator graph.
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(node *Tensor)
	visit = func(node *Tensor) {
		if visited[node] || node.creator == nil {
			return
		}
		visited[node] = true
		for _, in := range node.creator.Inputs() {
			visit(in)
		}
		order = append(order, node)
	}
	visit(t)

	grads := make(map[*Tensor]*Tensor)
	seed, err := Ones([]int{1})
	if err != nil {
		return err
	}
	grads[t] = seed

	accumulate := func(target, g *Tensor) error {
		if existing, ok := grads[target]; ok {
			sum, err := Add(existing, g)
			if err != nil {
				return err
			}
			grads[target] = sum
			return nil
		}
		grads[target] = g
		return nil
	}

	// Walk the graph in reverse topological order.
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		gradOut, ok := grads[node]
		if !ok {
			continue
		}
		inputGrads := node.creator.Backward(gradOut)
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return fmt.Errorf("operation %T returned %d gradients for %d inputs",
				node.creator, len(inputGrads), len(inputs))
		}
		for j, in := range inputs {
			if !in.requiresGrad && in.creator == nil {
				continue
			}
			if err := accumulate(in, inputGrads[j]); err != nil {
				return err
			}
		}
	}

	// Transfer accumulated gradients onto leaf tensors.
	for node, g := range grads {
		if !node.requiresGrad || node.creator != nil {
			continue
		}
		if node.grad == nil {
			node.grad = g
		} else {
			sum, err := Add(node.grad, g)
			if err != nil {
				return err
			}
			node.grad = sum
		}
	}

	return nil
}
