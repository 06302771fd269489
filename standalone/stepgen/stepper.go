package stepgen

import (
	"fmt"
	"strconv"
	"strings"

	"motioncore/core"
	"motioncore/standalone"
)

// Stepper represents a single stepper motor
type Stepper struct {
	name   string
	config standalone.AxisConfig

	// GPIO driver interface
	driver  core.GPIODriver
	stepPin core.GPIOPin
	dirPin  core.GPIOPin
	enPin   core.GPIOPin
	hasEn   bool

	// Current state
	position  int64   // Current position in steps
	targetPos int64   // Target position in steps
	active    bool    // Is stepper currently moving

	// Step generation
	nextStepTime uint32      // Time for next step
	stepInterval uint32      // Interval between steps (ticks)
	stepTimer    *core.Timer // Timer for step generation
}

// parseGPIOPinName converts the config's "gpioN" pin naming convention into
// a core.GPIOPin.
func parseGPIOPinName(name string) (core.GPIOPin, error) {
	n := strings.TrimPrefix(strings.ToLower(name), "gpio")
	v, err := strconv.ParseUint(n, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("stepgen: invalid pin name %q: %w", name, err)
	}
	return core.GPIOPin(v), nil
}

// NewStepper creates a new stepper motor controller
func NewStepper(name string, config standalone.AxisConfig) (*Stepper, error) {
	stepper := &Stepper{
		name:     name,
		config:   config,
		position: 0,
		active:   false,
	}

	stepper.stepTimer = &core.Timer{
		WakeTime: 0,
		Handler:  stepper.stepHandler,
		Next:     nil,
	}

	return stepper, nil
}

// InitPins initializes the GPIO pins for this stepper
func (s *Stepper) InitPins(gpioDriver core.GPIODriver) error {
	s.driver = gpioDriver

	stepPin, err := parseGPIOPinName(s.config.StepPin)
	if err != nil {
		return err
	}
	s.stepPin = stepPin
	if err := gpioDriver.ConfigureOutput(s.stepPin); err != nil {
		return err
	}

	dirPin, err := parseGPIOPinName(s.config.DirPin)
	if err != nil {
		return err
	}
	s.dirPin = dirPin
	if err := gpioDriver.ConfigureOutput(s.dirPin); err != nil {
		return err
	}

	if s.config.EnablePin != "" {
		enPin, err := parseGPIOPinName(s.config.EnablePin)
		if err != nil {
			return err
		}
		s.enPin = enPin
		s.hasEn = true
		if err := gpioDriver.ConfigureOutput(s.enPin); err != nil {
			return err
		}
		// Disable motor initially.
		_ = gpioDriver.SetPin(s.enPin, s.config.InvertEnable)
	}

	return nil
}

// Enable enables the stepper motor
func (s *Stepper) Enable() {
	if s.hasEn {
		_ = s.driver.SetPin(s.enPin, !s.config.InvertEnable)
	}
}

// Disable disables the stepper motor
func (s *Stepper) Disable() {
	if s.hasEn {
		_ = s.driver.SetPin(s.enPin, s.config.InvertEnable)
	}
}

// MoveTo schedules a move to the target position
func (s *Stepper) MoveTo(targetMM float64, velocity float64, accel float64) {
	s.targetPos = int64(targetMM * s.config.StepsPerMM)

	forward := s.targetPos >= s.position
	dirValue := forward
	if s.config.InvertDir {
		dirValue = !dirValue
	}
	_ = s.driver.SetPin(s.dirPin, dirValue)

	stepsPerSecond := velocity * s.config.StepsPerMM
	if stepsPerSecond > 0 {
		s.stepInterval = core.TimerFromUS(uint32(1000000.0 / stepsPerSecond))
	} else {
		s.stepInterval = core.TimerFromUS(1000000) // very slow if velocity is 0
	}

	s.Enable()

	if s.position != s.targetPos {
		s.active = true
		s.nextStepTime = core.GetTime() + s.stepInterval
		s.stepTimer.WakeTime = s.nextStepTime
		s.stepTimer.Handler = s.stepHandler
		core.ScheduleTimer(s.stepTimer)
	}
}

// stepHandler is called by the scheduler to generate step pulses
func (s *Stepper) stepHandler(timer *core.Timer) uint8 {
	if !s.active || s.position == s.targetPos {
		s.active = false
		return core.SF_DONE
	}

	_ = s.driver.SetPin(s.stepPin, true)

	if s.targetPos > s.position {
		s.position++
	} else {
		s.position--
	}

	// Schedule step-down (pulse width ~2us)
	timer.WakeTime = core.GetTime() + core.TimerFromUS(2)
	timer.Handler = s.stepDownHandler
	return core.SF_RESCHEDULE
}

// stepDownHandler turns off the step pulse
func (s *Stepper) stepDownHandler(timer *core.Timer) uint8 {
	_ = s.driver.SetPin(s.stepPin, false)

	if s.position == s.targetPos {
		s.active = false
		return core.SF_DONE
	}

	s.nextStepTime += s.stepInterval
	timer.WakeTime = s.nextStepTime
	timer.Handler = s.stepHandler
	return core.SF_RESCHEDULE
}

// GetPosition returns the current position in millimeters
func (s *Stepper) GetPosition() float64 {
	return float64(s.position) / s.config.StepsPerMM
}

// SetPosition sets the current position (for homing, etc.)
func (s *Stepper) SetPosition(posMM float64) {
	s.position = int64(posMM * s.config.StepsPerMM)
	s.targetPos = s.position
}

// IsActive returns whether the stepper is currently moving
func (s *Stepper) IsActive() bool {
	return s.active
}

// Stop immediately stops the stepper
func (s *Stepper) Stop() {
	s.active = false
	s.targetPos = s.position
}
