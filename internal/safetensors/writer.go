package safetensors

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
)

// Tensor is an in-memory F32 tensor for WriteF32.
type Tensor struct {
	Shape []int
	Data  []float32
}

// WriteF32 writes tensors as a single F32 safetensors file. Tensors are laid
// out in name order so the output is reproducible.
func WriteF32(path string, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		n, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		if n != len(t.Data) {
			return fmt.Errorf("tensor %s: shape %v holds %d values, got %d", name, t.Shape, n, len(t.Data))
		}
		size := int64(n * 4)
		header[name] = tensorHeader{DType: "F32", Shape: nonNilShape(t.Shape), DataOffsets: []int64{offset, offset + size}}
		offset += size
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	buf := make([]byte, 8, 8+len(hb)+int(offset))
	binary.LittleEndian.PutUint64(buf, uint64(len(hb)))
	buf = append(buf, hb...)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return os.WriteFile(path, buf, 0o644)
}

func nonNilShape(shape []int) []int {
	if shape == nil {
		return []int{}
	}
	return shape
}
