package onnx

import (
	"fmt"
	"math"
)

// poolOutput turns model output into one unit-length vector. A
// [1, dims] output is taken as already pooled; a [1, seq, dims] output
// is mean-pooled over the positions the mask attends.
func poolOutput(data []float32, shape []int64, mask []int64, dims int) ([]float32, error) {
	var vec []float32
	switch len(shape) {
	case 2:
		if shape[0] != 1 || shape[1] != int64(dims) || len(data) < dims {
			return nil, fmt.Errorf("pooled output shape %v, want [1 %d]", shape, dims)
		}
		vec = append([]float32(nil), data[:dims]...)
	case 3:
		if shape[0] != 1 || shape[2] != int64(dims) {
			return nil, fmt.Errorf("hidden state shape %v, want [1 seq %d]", shape, dims)
		}
		seq := int(shape[1])
		if len(data) < seq*dims || len(mask) < seq {
			return nil, fmt.Errorf("hidden state has %d values for shape %v and %d mask entries", len(data), shape, len(mask))
		}
		vec = make([]float32, dims)
		var attended float32
		for pos := 0; pos < seq; pos++ {
			if mask[pos] == 0 {
				continue
			}
			attended++
			row := data[pos*dims : (pos+1)*dims]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended positions")
		}
		for j := range vec {
			vec[j] /= attended
		}
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	return normalize(vec), nil
}

// normalize scales vec to unit length in place. A zero vector is
// returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
