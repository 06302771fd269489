//go:build rp2040 || rp2350

package main

import (
	"motioncore/core"
	"machine"
)

func main() {
	// CRITICAL: Disable watchdog on boot to clear any previous state
	// This prevents issues with watchdog persisting across resets
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// Initialize USB CDC immediately
	InitUSB()

	// Initialize clock
	InitClock()
	core.TimerInit()

	// Initialize and register GPIO driver
	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	// Initialize and register SPI driver (TMC5240 phase-stepping current commits)
	spiDriver := NewRP2040SPIDriver()
	core.SetSPIDriver(spiDriver)

	RunStandaloneMode()
}
