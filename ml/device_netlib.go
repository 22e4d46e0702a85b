//go:build netlib

package ml

import (
	"gonum.org/v1/netlib/blas/netlib"
)

// Building with `-tags netlib` links a C BLAS (OpenBLAS, MKL, ...) through cgo.
func init() {
	blasBackends["netlib"] = netlib.Implementation{}
}
