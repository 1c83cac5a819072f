package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
)

// maxHeaderLen bounds the JSON header so a corrupt length prefix cannot
// trigger a huge allocation.
const maxHeaderLen = 100 << 20

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an opened safetensors header. Tensor data is read on demand.
type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	headerLen, err := readU64(f)
	if err != nil {
		return nil, fmt.Errorf("%s: read header length: %w", path, err)
	}
	if headerLen > maxHeaderLen || int64(headerLen)+8 > st.Size() {
		return nil, fmt.Errorf("%s: invalid header length %d", path, headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%s: parse header: %w", path, err)
	}

	var meta map[string]string
	if m, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%s: parse metadata: %w", path, err)
		}
		delete(raw, "__metadata__")
	}

	dataStart := int64(8 + headerLen)
	dataLen := st.Size() - dataStart
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > dataLen {
			return nil, fmt.Errorf("tensor %s: offsets [%d,%d) outside data section of %d bytes", name, start, end, dataLen)
		}
		tensors[name] = TensorInfo{DType: th.DType, Shape: th.Shape, Start: start, End: end}
	}
	return &File{
		Path:      path,
		DataStart: dataStart,
		Tensors:   tensors,
		Metadata:  meta,
	}, nil
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	buf := make([]byte, t.End-t.Start)

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(buf, f.DataStart+t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

// ReadTensorF32 reads a tensor and widens F16/BF16 data to float32.
func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	width := dtypeSize(info.DType)
	if width == 0 {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	if len(raw) != n*width {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %s data is %d bytes, want %d", name, info.DType, len(raw), n*width)
	}
	out := make([]float32, n)
	for i := range out {
		switch info.DType {
		case "F32":
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		case "BF16":
			out[i] = bf16ToF32(binary.LittleEndian.Uint16(raw[i*2:]))
		case "F16":
			out[i] = fp16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	}
	return out, info, nil
}

func dtypeSize(dtype string) int {
	switch dtype {
	case "F32":
		return 4
	case "F16", "BF16":
		return 2
	default:
		return 0
	}
}

// numElements treats an empty shape as a scalar.
func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d > 0 && n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
