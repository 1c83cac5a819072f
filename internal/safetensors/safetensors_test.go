package safetensors

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// writeRaw creates a safetensors file from a header document and data bytes.
func writeRaw(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()
	hb, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	buf := make([]byte, 8, 8+len(hb)+len(data))
	binary.LittleEndian.PutUint64(buf, uint64(len(hb)))
	buf = append(buf, hb...)
	buf = append(buf, data...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func tensorDoc(dtype string, shape []int, start, end int64) map[string]any {
	return map[string]any{"dtype": dtype, "shape": shape, "data_offsets": []int64{start, end}}
}

func TestOpenValidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	writeRaw(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"weight":       tensorDoc("F32", []int{2, 3}, 0, 24),
		"bias":         tensorDoc("F32", []int{3}, 24, 36),
	}, make([]byte, 36))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(f.Tensors) != 2 {
		t.Fatalf("expected 2 tensors (metadata excluded), got %d", len(f.Tensors))
	}
	if f.Metadata["format"] != "pt" {
		t.Fatalf("metadata not captured: %v", f.Metadata)
	}
	names := f.Names()
	if len(names) != 2 || names[0] != "bias" || names[1] != "weight" {
		t.Fatalf("unexpected names: %v", names)
	}
	info, ok := f.Tensor("weight")
	if !ok || info.DType != "F32" || len(info.Shape) != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected tensor info: %+v", info)
	}
}

func TestOpenRejectsBrokenFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(t *testing.T, path string)
	}{
		{
			name: "truncated length",
			write: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
			},
		},
		{
			name: "header longer than file",
			write: func(t *testing.T, path string) {
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], 1<<30)
				if err := os.WriteFile(path, buf[:], 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
			},
		},
		{
			name: "invalid json",
			write: func(t *testing.T, path string) {
				buf := make([]byte, 8)
				binary.LittleEndian.PutUint64(buf, 12)
				buf = append(buf, "not valid js"...)
				if err := os.WriteFile(path, buf, 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
			},
		},
		{
			name: "one data offset",
			write: func(t *testing.T, path string) {
				writeRaw(t, path, map[string]any{
					"bad": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
				}, make([]byte, 4))
			},
		},
		{
			name: "offset past data",
			write: func(t *testing.T, path string) {
				writeRaw(t, path, map[string]any{"bad": tensorDoc("F32", []int{4}, 0, 16)}, make([]byte, 8))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "x.safetensors")
			tc.write(t, path)
			if _, err := Open(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := Open("/nonexistent/file.safetensors"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestReadTensorDTypes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dtypes.safetensors")

	data := make([]byte, 0, 16)
	data = binary.LittleEndian.AppendUint16(data, 0x3F80) // bf16 1.0
	data = binary.LittleEndian.AppendUint16(data, 0x4000) // bf16 2.0
	data = binary.LittleEndian.AppendUint16(data, 0x3C00) // f16 1.0
	data = binary.LittleEndian.AppendUint16(data, 0xC000) // f16 -2.0
	data = append(data, make([]byte, 8)...)               // i32 x2
	writeRaw(t, path, map[string]any{
		"bf": tensorDoc("BF16", []int{2}, 0, 4),
		"hf": tensorDoc("F16", []int{2}, 4, 8),
		"ip": tensorDoc("I32", []int{2}, 8, 16),
		"sz": tensorDoc("F32", []int{4}, 8, 16),
	}, data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	bf, _, err := f.ReadTensorF32("bf")
	if err != nil || bf[0] != 1 || bf[1] != 2 {
		t.Fatalf("bf16: %v %v", bf, err)
	}
	hf, _, err := f.ReadTensorF32("hf")
	if err != nil || hf[0] != 1 || hf[1] != -2 {
		t.Fatalf("f16: %v %v", hf, err)
	}
	if _, _, err := f.ReadTensorF32("ip"); err == nil {
		t.Fatal("expected error for unsupported dtype")
	}
	if _, _, err := f.ReadTensorF32("sz"); err == nil {
		t.Fatal("expected error for size mismatch")
	}
	if _, _, err := f.ReadTensor("nonexistent"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
}

func TestWriteF32(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	err := WriteF32(path, map[string]Tensor{
		"embed_tokens.weight": {Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
		"decay":               {Shape: []int{}, Data: []float32{0.5}},
	}, map[string]string{"format": "pt"})
	if err != nil {
		t.Fatalf("WriteF32: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	emb, info, err := f.ReadTensorF32("embed_tokens.weight")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if info.Shape[0] != 2 || emb[3] != 4 {
		t.Fatalf("unexpected tensor: %v %v", info.Shape, emb)
	}
	decay, _, err := f.ReadTensorF32("decay")
	if err != nil || len(decay) != 1 || decay[0] != 0.5 {
		t.Fatalf("scalar: %v %v", decay, err)
	}

	err = WriteF32(path, map[string]Tensor{"bad": {Shape: []int{3}, Data: []float32{1}}}, nil)
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
}
