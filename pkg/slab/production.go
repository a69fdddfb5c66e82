//go:build !debug

package slab

const debugEnabled = false

func debugAssert(cond bool, msg string) {}
