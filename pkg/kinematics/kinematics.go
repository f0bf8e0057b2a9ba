// Package kinematics provides kinematic transformation implementations for various printer types.
package kinematics

// Move represents a movement command with position and velocity information.
type Move struct {
	StartPos      []float64 // Starting position [x, y, z, e...]
	EndPos        []float64 // Ending position [x, y, z, e...]
	AxesD         []float64 // Distance moved per axis
	MoveD         float64   // Total movement distance
	MinMoveTime   float64   // Minimum time for move
	MaxCruiseV    float64   // Maximum cruise velocity
	AccelT        float64   // Acceleration time
	CruiseT       float64   // Cruise time
	DecelT        float64   // Deceleration time
	StartV        float64   // Starting velocity
	CruiseV       float64   // Cruise velocity
	AccelR        float64   // Acceleration rate
	DecelR        float64   // Deceleration rate
	DeltaV2       float64   // Velocity squared delta
	SmoothDeltaV2 float64   // Smoothed velocity squared delta
}

// LimitSpeed caps the move's maximum cruise velocity at maxV. maxA is
// accepted but not applied.
func (m *Move) LimitSpeed(maxV, maxA float64) {
	if m.MaxCruiseV > maxV {
		m.MaxCruiseV = maxV
	}
}

// Rail represents a stepper motor rail configuration.
type Rail struct {
	Name            string
	StepDist        float64
	PositionMin     float64
	PositionMax     float64
	HomingSpeed     float64
	SecondHoming    float64
	HomingRetract   float64
	PositionEndstop float64
	HomingPositive  bool
}

// BaseKinematics provides the rail/limit/homing bookkeeping DeltaKinematics
// embeds. Unlike the teacher's version, this package carries no abstract
// Kinematics interface and no cartesian/corexy/polar sibling implementations
// (non-delta kinematics is out of scope) and no per-implementation
// GetType/GetStatus/CheckEndstops/CheckZMove/GetRails/GetLimits/
// GetMaxZVelocity/GetMaxZAccel accessors, since DeltaKinematics is always used
// concretely and defines its own GetType/GetStatus/CheckMove/ClearHomingState.
type BaseKinematics struct {
	Rails        []Rail
	Limits       [][2]float64
	MaxZVelocity float64
	MaxZAccel    float64
	AxesMin      []float64
	AxesMax      []float64
}

// NewBaseKinematics creates a new base kinematics instance.
func NewBaseKinematics(rails []Rail, maxZVelocity, maxZAccel float64) *BaseKinematics {
	bk := &BaseKinematics{
		Rails:        rails,
		MaxZVelocity: maxZVelocity,
		MaxZAccel:    maxZAccel,
		Limits:       make([][2]float64, len(rails)),
		AxesMin:      make([]float64, len(rails)),
		AxesMax:      make([]float64, len(rails)),
	}

	// Initialize limits to unhomed state and axes bounds
	for i := range rails {
		bk.Limits[i] = [2]float64{1.0, -1.0} // Unhomed state
		bk.AxesMin[i] = rails[i].PositionMin
		bk.AxesMax[i] = rails[i].PositionMax
	}

	return bk
}

// SetPosition updates the position for homed axes.
func (bk *BaseKinematics) SetPosition(newPos []float64, homingAxes string) {
	for _, axisName := range homingAxes {
		axis := axisIndex(axisName)
		if axis >= 0 && axis < len(bk.Rails) {
			bk.Limits[axis] = [2]float64{bk.Rails[axis].PositionMin, bk.Rails[axis].PositionMax}
		}
	}
}

// axisIndex returns the index for a given axis name.
func axisIndex(axisName rune) int {
	switch axisName {
	case 'x', 'X':
		return 0
	case 'y', 'Y':
		return 1
	case 'z', 'Z':
		return 2
	case 'e', 'E':
		return 3
	default:
		return -1
	}
}
