package ml

import (
	"math/rand/v2"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/blas/gonum"
)

// DeviceCPU is gonum's pure Go BLAS.
const DeviceCPU = "cpu"

var blasBackends = map[string]blas.Float64{
	DeviceCPU: gonum.Implementation{},
}

// Device is the execution context created once at startup. It decides where
// the matrix arithmetic runs and owns the random source every component
// draws from. Core code never looks at the device name.
type Device struct {
	Name string
	Rand *rand.Rand
}

// NewDevice selects the BLAS backend registered under name and seeds the
// random source.
func NewDevice(name string, seed uint64) (*Device, error) {
	if name == "" {
		name = DeviceCPU
	}
	impl, ok := blasBackends[name]
	if !ok {
		return nil, errors.Errorf("unknown device %q (available: %v)", name, Devices())
	}
	blas64.Use(impl)
	return &Device{
		Name: name,
		Rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Devices lists the registered backends.
func Devices() []string {
	names := make([]string, 0, len(blasBackends))
	for name := range blasBackends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
