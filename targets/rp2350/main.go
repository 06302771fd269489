//go:build rp2350

package main

import (
	"motioncore/core"
	"machine"
	"time"
)

// ledBlink blinks the LED a specific number of times for diagnostics
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(10 * time.Millisecond)
		led.Low()
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // Pause after blink sequence
}

func main() {
	// Initialize debug UART FIRST for early diagnostics
	// GPIO36=TX, GPIO37=RX at 115200 baud
	InitDebugUART()
	DebugPrintln("[MAIN] Starting main()")

	// Pin main execution to Core 0 for stability
	machine.LockCore(0)
	DebugPrintln("[MAIN] Locked to Core 0")

	InitUSB()
	DebugPrintln("[MAIN] USB initialized")

	// CRITICAL: Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		DebugPrintln("[MAIN] Watchdog config failed")
		return
	}
	DebugPrintln("[MAIN] Watchdog disabled")

	InitClock()
	core.TimerInit()
	DebugPrintln("[MAIN] Clock/timer initialized")

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	softwareSPIDriver := NewRP2040SoftwareSPIDriver()
	core.SetSoftwareSPIDriver(softwareSPIDriver)
	DebugPrintln("[MAIN] GPIO/SPI drivers registered")

	ledBlink(4)

	RunStandaloneMode()
}
