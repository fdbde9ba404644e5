package core

import (
	"fmt"
	"math"
)

// WeightVector is an ordered sequence of real-valued tensors, one per
// model layer. Layer shapes are fixed for the run; all arithmetic below
// is layer-wise and elementwise (spec §3 WeightVector).
type WeightVector struct {
	Layers [][]float64 `json:"layers"`
}

// Clone returns a deep copy, so callers can mutate the result without
// aliasing the original (used before clipping/noising a freshly trained
// vector).
func (w WeightVector) Clone() WeightVector {
	out := WeightVector{Layers: make([][]float64, len(w.Layers))}
	for i, layer := range w.Layers {
		out.Layers[i] = append([]float64(nil), layer...)
	}
	return out
}

func sameShape(a, b WeightVector) error {
	if len(a.Layers) != len(b.Layers) {
		return fmt.Errorf("weight vector layer count mismatch: %d vs %d", len(a.Layers), len(b.Layers))
	}
	for i := range a.Layers {
		if len(a.Layers[i]) != len(b.Layers[i]) {
			return fmt.Errorf("weight vector layer %d shape mismatch: %d vs %d", i, len(a.Layers[i]), len(b.Layers[i]))
		}
	}
	return nil
}

// Add returns the elementwise sum of w and other.
func (w WeightVector) Add(other WeightVector) (WeightVector, error) {
	if err := sameShape(w, other); err != nil {
		return WeightVector{}, err
	}
	out := w.Clone()
	for i, layer := range other.Layers {
		for j, v := range layer {
			out.Layers[i][j] += v
		}
	}
	return out, nil
}

// Scale returns w with every element multiplied by s.
func (w WeightVector) Scale(s float64) WeightVector {
	out := w.Clone()
	for i := range out.Layers {
		for j := range out.Layers[i] {
			out.Layers[i][j] *= s
		}
	}
	return out
}

// AverageWeightVectors computes the uniform-weighted elementwise mean of
// vs (FedAvg with uniform weighting; spec §4.3 step 2 documents
// proportional weighting by dataset size as an extension point, not
// implemented here).
func AverageWeightVectors(vs []WeightVector) (WeightVector, error) {
	if len(vs) == 0 {
		return WeightVector{}, fmt.Errorf("average: no weight vectors supplied")
	}
	sum := vs[0].Clone()
	for _, v := range vs[1:] {
		var err error
		sum, err = sum.Add(v)
		if err != nil {
			return WeightVector{}, err
		}
	}
	return sum.Scale(1.0 / float64(len(vs))), nil
}

// SumWeightVectors computes the elementwise sum with no averaging, used
// by the leader's global aggregation step (§4.4).
func SumWeightVectors(vs []WeightVector) (WeightVector, error) {
	if len(vs) == 0 {
		return WeightVector{}, fmt.Errorf("sum: no weight vectors supplied")
	}
	sum := vs[0].Clone()
	for _, v := range vs[1:] {
		var err error
		sum, err = sum.Add(v)
		if err != nil {
			return WeightVector{}, err
		}
	}
	return sum, nil
}

// l2Norm returns the Euclidean norm of a flattened layer.
func l2Norm(layer []float64) float64 {
	var sumSq float64
	for _, v := range layer {
		sumSq += v * v
	}
	return math.Sqrt(sumSq)
}

// ClipL2 clips each layer's L2 norm to at most maxNorm, mirroring
// ProductionDifferentialPrivacy.clip_gradients applied per layer (spec
// §4.1 step 3: "Clip each layer by L2 norm ≤ C").
func (w WeightVector) ClipL2(maxNorm float64) WeightVector {
	out := w.Clone()
	for i, layer := range out.Layers {
		norm := l2Norm(layer)
		if norm > maxNorm && norm > 0 {
			scale := maxNorm / norm
			for j := range layer {
				out.Layers[i][j] *= scale
			}
		}
	}
	return out
}
