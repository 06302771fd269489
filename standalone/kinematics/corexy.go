package kinematics

import (
	"errors"
	"motioncore/standalone"
)

// CoreXY implements CoreXY belt kinematics: two motors (A, B) each drive a
// belt loop such that physical X/Y motion is the sum/difference of the two
// motor positions (stepper_a = x + y, stepper_b = x - y). Z and E remain
// 1:1, matching the teacher's Cartesian axis handling.
type CoreXY struct {
	config *standalone.MachineConfig
}

// NewCoreXY creates a new CoreXY kinematics instance.
func NewCoreXY(config *standalone.MachineConfig) (*CoreXY, error) {
	if _, ok := config.Axes["x"]; !ok {
		return nil, errors.New("X axis not configured")
	}
	if _, ok := config.Axes["y"]; !ok {
		return nil, errors.New("Y axis not configured")
	}
	if _, ok := config.Axes["z"]; !ok {
		return nil, errors.New("Z axis not configured")
	}

	return &CoreXY{
		config: config,
	}, nil
}

// CalcPosition converts XYZ coordinates to stepper positions. Returned
// order is [A, B, Z, E], where A and B are the two belt motors.
func (k *CoreXY) CalcPosition(pos standalone.Position) ([]float64, error) {
	a := pos.X + pos.Y
	b := pos.X - pos.Y
	return []float64{a, b, pos.Z, pos.E}, nil
}

// GetAxisNames returns the axis names for CoreXY kinematics: the logical
// names stay x/y/z/e even though the underlying steppers drive a and b.
func (k *CoreXY) GetAxisNames() []string {
	return []string{"x", "y", "z", "e"}
}

// CheckLimits validates that a position is within configured limits. The
// limits are expressed in logical X/Y/Z space, same as Cartesian, since
// that is what printer config and slicers author against; only
// CalcPosition projects into motor space.
func (k *CoreXY) CheckLimits(pos standalone.Position) error {
	if xAxis, ok := k.config.Axes["x"]; ok {
		if pos.X < xAxis.MinPosition || pos.X > xAxis.MaxPosition {
			return errors.New("X position out of limits")
		}
	}

	if yAxis, ok := k.config.Axes["y"]; ok {
		if pos.Y < yAxis.MinPosition || pos.Y > yAxis.MaxPosition {
			return errors.New("Y position out of limits")
		}
	}

	if zAxis, ok := k.config.Axes["z"]; ok {
		if pos.Z < zAxis.MinPosition || pos.Z > zAxis.MaxPosition {
			return errors.New("Z position out of limits")
		}
	}

	return nil
}
