//go:build rp2040

package pio

// PIO-backed GPIOBurstBus (core/burststep.go) using the tinygo-org/pio
// package: hardware-timed, jitter-free replay of a prebuilt step/dir toggle
// sequence, run from a PIO state machine instead of the step ISR so burst
// stepping never contends with the step timer for the shared GPIO port.

import (
	"device/rp"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// PIO program for GPIO-port burst replay.
//
// Command word format:
//
//	Bits 0-31: full 32-bit port snapshot to drive onto the OUT pins
//
// Program flow:
//  1. Pull a 32-bit port snapshot from the FIFO
//  2. Drive it onto the pins
//  3. Wait one replay tick
//  4. Repeat
//
// buildBurstProgram creates the burst-replay PIO program using AssemblerV0.
func buildBurstProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),            // 0: pull block
		asm.Out(rp2pio.OutDestPins, 32).Delay(7).Encode(), // 1: out pins, 32 [7]
		// .wrap
	}
}

const burstPIOOrigin = 0

// PIOBurstBus implements core.GPIOBurstBus by replaying a prebuilt buffer of
// port-wide pin snapshots through a PIO state machine's output FIFO at a
// fixed rate, freeing the step ISR from driving the handful of discrete
// toggles burst stepping needs (spec.md §4.8.2).
type PIOBurstBus struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	offset uint8
	pioNum uint8
	smNum  uint8

	portPins uint8 // base pin of the consecutive port range the buffer drives
	numPins  uint8
}

// NewPIOBurstBus creates a burst bus on the given PIO block/state machine,
// driving numPins consecutive pins starting at portPins.
func NewPIOBurstBus(pioNum, smNum uint8, portPins, numPins uint8) *PIOBurstBus {
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}
	return &PIOBurstBus{
		pio:      pioHW,
		sm:       pioHW.StateMachine(smNum),
		pioNum:   pioNum,
		smNum:    smNum,
		portPins: portPins,
		numPins:  numPins,
	}
}

// Init claims the state machine, loads the burst-replay program and sets
// its out-shift, wrap and clock divider. It does not set the OUT pin base,
// pin count or pin directions: portPins/numPins are stored but not applied.
// Call once before the first Arm.
func (b *PIOBurstBus) Init(clkDivInt uint16, clkDivFrac uint8) error {
	b.sm.TryClaim()

	program := buildBurstProgram()
	offset, err := b.pio.AddProgram(program, burstPIOOrigin)
	if err != nil {
		return err
	}
	b.offset = offset

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutShift(true, true, 32) // shift right, autopull, 32-bit threshold
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(clkDivInt, clkDivFrac)

	b.sm.Init(offset, cfg)
	b.sm.SetEnabled(true)
	return nil
}

// Arm loads buf into the PIO FIFO for replay at the configured rate
// (core.GPIOBurstBus).
func (b *PIOBurstBus) Arm(buf []uint32) error {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	for _, word := range buf {
		for b.sm.IsTxFIFOFull() {
		}
		b.sm.TxPut(word)
	}
	b.sm.SetEnabled(true)
	return nil
}

// SetDirPins writes the direction GPIOs covered by mask to value ahead of
// the replay starting (core.GPIOBurstBus). Direction pins sit outside the
// PIO-driven step port, so they're set directly through the SIO registers.
func (b *PIOBurstBus) SetDirPins(mask, value uint32) error {
	set := value & mask
	clear := mask &^ value
	if set != 0 {
		rp.SIO.GPIO_OUT_SET.Set(set)
	}
	if clear != 0 {
		rp.SIO.GPIO_OUT_CLR.Set(clear)
	}
	return nil
}
