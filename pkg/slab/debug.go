//go:build debug

package slab

import "github.com/ajitpratap0/slabpool/pkg/slaberrors"

// debugEnabled gates the usage assertions. The constant folds away the
// checks entirely in release builds.
const debugEnabled = true

func debugAssert(cond bool, msg string) {
	if !cond {
		panic(slaberrors.New(slaberrors.ErrorTypeUsage, msg))
	}
}
