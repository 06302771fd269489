//go:build rp2350

package main

import (
	"motioncore/core"
	"motioncore/standalone"
	"motioncore/standalone/config"
	"machine"
	"time"
)

// RunStandaloneMode runs the MCU in standalone mode, driving the gcode
// planner directly over USB with no host-side Klipper protocol involved.
func RunStandaloneMode() {
	cfg := config.DefaultCartesianConfig()

	manager, err := standalone.NewManagerWithConfig(cfg)
	if err != nil {
		DebugPrintln("[MAIN] manager init failed")
		ledBlink(2)
		return
	}

	gpioDriver := core.GetGPIODriver()
	if gpioDriver == nil {
		DebugPrintln("[MAIN] GPIO driver not configured")
		return
	}

	if err := manager.Initialize(gpioDriver); err != nil {
		DebugPrintln("[MAIN] manager.Initialize failed")
		ledBlink(2)
		return
	}

	if err := manager.Start(); err != nil {
		DebugPrintln("[MAIN] manager.Start failed")
		return
	}

	DebugPrintln("[MAIN] standalone mode running")
	ledBlink(3)

	for {
		available := USBAvailable()
		if available > 0 {
			data, err := USBRead()
			if err == nil {
				if err := manager.ProcessByte(data); err != nil {
					manager.SendResponse("Error: ")
					manager.SendResponse(err.Error())
					manager.SendResponse("\n")
				}
			}
		}

		if output := manager.GetOutput(); len(output) > 0 {
			USBWriteBytes(output)
		}

		UpdateSystemTime()
		core.ProcessTimers()

		time.Sleep(10 * time.Microsecond)
	}
}
