package device

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
)

// Device names where a model instance places its tensors. The generation
// engine carries it opaquely; only model constructors interpret it.
type Device struct {
	Kind    string
	Ordinal int
}

// Default is the host CPU.
var Default = Device{Kind: CPU}

func (d Device) String() string {
	if d.Kind == "" || d.Kind == CPU {
		return CPU
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.Ordinal)
}

// IsCPU reports whether d refers to the host.
func (d Device) IsCPU() bool { return d.Kind == "" || d.Kind == CPU }

// Parse accepts "cpu", "cuda" or "cuda:N". An empty string selects the CPU.
func Parse(name string) (Device, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == CPU {
		return Default, nil
	}
	kind, ord, hasOrd := strings.Cut(name, ":")
	if kind != CUDA {
		return Device{}, fmt.Errorf("unknown device %q (expected cpu or cuda[:N])", name)
	}
	if !hasOrd {
		return Device{Kind: CUDA}, nil
	}
	n, err := strconv.Atoi(ord)
	if err != nil || n < 0 {
		return Device{}, fmt.Errorf("invalid device ordinal %q", ord)
	}
	return Device{Kind: CUDA, Ordinal: n}, nil
}

// Select mirrors the usual --cpu switch: the host when cpu is set, otherwise
// the accelerator at ordinal.
func Select(cpu bool, ordinal int) Device {
	if cpu {
		return Default
	}
	return Device{Kind: CUDA, Ordinal: ordinal}
}

// MustParse is like Parse but panics on error.
func MustParse(name string) Device {
	d, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return d
}
