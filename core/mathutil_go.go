//go:build !tinygo

package core

import "math"

// Sqrtf, Sinf and Cosf mirror mathutil_tinygo.go's signatures on the host
// (regular Go) build, where the stdlib math package is the natural choice
// for test/simulation code and the host CLI.
func Sqrtf(v float64) float64 { return math.Sqrt(v) }
func Sinf(v float64) float64  { return math.Sin(v) }
func Cosf(v float64) float64  { return math.Cos(v) }
