//go:build tinygo

package core

import "github.com/orsinium-labs/tinymath"

// Sqrtf, Sinf and Cosf route the ISR-adjacent hot paths (quadratic step
// solve, phase-stepping LUT trig) through tinymath on TinyGo targets, where
// the standard library's math package pulls in a much heavier software
// float implementation than the firmware's Cortex-M0+/M33 targets want on
// the step/phase-stepping ISR paths.
func Sqrtf(v float64) float64 { return float64(tinymath.Sqrt(float32(v))) }
func Sinf(v float64) float64  { return float64(tinymath.Sin(float32(v))) }
func Cosf(v float64) float64  { return float64(tinymath.Cos(float32(v))) }
