package core

// PhaseSPIBus abstracts the TMC5240 SPI datagram exchange the
// phase-stepping engine needs: a non-blocking try-lock (the bus is shared
// with the regular UART/SPI command path, spec.md §4.8.1 "Bus
// arbitration") and a single register write.  A build-tagged implementation
// wires this onto core.SPIDriver for real hardware; tests supply a fake.
type PhaseSPIBus interface {
	// TryLock attempts to claim the bus for one register write without
	// blocking. Returns false if another transfer currently owns it.
	TryLock() bool
	Unlock()
	// WriteRegister sends a 5-byte Trinamic datagram: 1 address byte
	// (write bit set) followed by 4 big-endian data bytes.
	WriteRegister(addr uint8, value uint32) error
}

// QuickTMC drives the TMC5240's XDIRECT register over SPI at the
// phase-stepping update rate (spec.md §4.8.1). It never retries a failed
// try-lock inline; a miss is recorded as a diagnostic and the caller
// retries on the next tick, since holding the phase-stepping ISR for a
// blocking SPI transfer would itself blow the ISR budget.
type QuickTMC struct {
	Bus  PhaseSPIBus
	Addr uint8 // TMC5240_XDIRECT by default

	faultCount uint32
}

// NewQuickTMC creates a driver writing XDIRECT over bus.
func NewQuickTMC(bus PhaseSPIBus) *QuickTMC {
	return &QuickTMC{Bus: bus, Addr: TMC5240_XDIRECT}
}

// encodeXDirect packs two signed 9-bit coil currents into the XDIRECT
// register layout: bits 0-8 coil A, bits 16-24 coil B (TMC5240 datasheet
// §XDIRECT, "direct mode coil current control").
func encodeXDirect(coilA, coilB int8) uint32 {
	a := uint32(int32(coilA)) & 0x1FF
	b := uint32(int32(coilB)) & 0x1FF
	return a | (b << 16)
}

// Write attempts to push one (coilA, coilB) pair to the driver. Returns
// false without error if the bus was busy (caller should try again next
// tick); returns an error only on an actual transfer fault.
func (q *QuickTMC) Write(coilA, coilB int8) (bool, error) {
	if !q.Bus.TryLock() {
		q.faultCount++
		RecordTiming(EvtPhaseSPIFault, 0, 0, q.faultCount, 0)
		return false, nil
	}
	defer q.Bus.Unlock()
	if err := q.Bus.WriteRegister(q.Addr, encodeXDirect(coilA, coilB)); err != nil {
		return false, err
	}
	return true, nil
}

// FaultCount reports how many writes were skipped due to bus contention
// (spec.md §7 diagnostics).
func (q *QuickTMC) FaultCount() uint32 { return q.faultCount }
