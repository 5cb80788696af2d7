package odrive

import (
	"log"
	"math"

	"github.com/NewHavenRobotics/ros-odrive/canbus"
)

// ControlMode is the wire control mode derived from the enabled inputs.
type ControlMode int

const (
	MODE_IDLE ControlMode = iota
	MODE_POSITION
	MODE_VELOCITY
	MODE_TORQUE
)

func (m ControlMode) String() string {
	switch m {
	case MODE_POSITION:
		return "position"
	case MODE_VELOCITY:
		return "velocity"
	case MODE_TORQUE:
		return "torque"
	}
	return "idle"
}

// Axis is one actuator and its node on the bus. Setpoints and estimates
// are joint space (rad, rad/s, Nm); the axis owns the conversion to and
// from the node's motor frame (turns, turns/s, Nm, gear scaled, possibly
// reversed).
//
// All fields are mutated from the single control thread only.
type Axis struct {
	bus canbus.CANBusInterface // borrowed from the controller, never closed here

	Name              string
	NodeID            uint32
	TransmissionRatio float64
	ReverseAxis       bool

	// commands (upstream => node)
	PosSetpoint    float64 // [rad]
	VelSetpoint    float64 // [rad/s]
	TorqueSetpoint float64 // [Nm]

	// state (node => upstream), NaN until the first telemetry frame
	PosEstimate    float64 // [rad]
	VelEstimate    float64 // [rad/s]
	TorqueEstimate float64 // [Nm]
	TorqueTarget   float64 // [Nm]

	// diagnostics from heartbeat and version frames
	AxisError uint32
	AxisState uint8
	FwVersion string

	// Which upstream inputs are enabled. Several can be set at once; the
	// non-primary ones ride along as feed-forward terms. Together they
	// imply the node's control mode.
	PosInputEnabled    bool
	VelInputEnabled    bool
	TorqueInputEnabled bool

	mode ControlMode // last mode applied by a command mode switch
}

func NewAxis(name string, nodeID uint32, ratio float64, reverse bool) *Axis {
	return &Axis{
		Name:              name,
		NodeID:            nodeID,
		TransmissionRatio: ratio,
		ReverseAxis:       reverse,
		PosEstimate:       math.NaN(),
		VelEstimate:       math.NaN(),
		TorqueEstimate:    math.NaN(),
		TorqueTarget:      math.NaN(),
	}
}

// Mode derives the wire control mode from the enabled inputs. Position
// wins over velocity, velocity over torque.
func (a *Axis) Mode() ControlMode {
	switch {
	case a.PosInputEnabled:
		return MODE_POSITION
	case a.VelInputEnabled:
		return MODE_VELOCITY
	case a.TorqueInputEnabled:
		return MODE_TORQUE
	}
	return MODE_IDLE
}

func (a *Axis) direction() float64 {
	if a.ReverseAxis {
		return -1
	}
	return 1
}

func (a *Axis) send(m Msg) error {
	return a.bus.SendMsg(canbus.CANMsg{
		ID:   frameID(a.NodeID, m.CmdID()),
		Data: m.Encode(),
	})
}

// writeCommand emits the single setpoint frame matching the enabled
// inputs. Disabled feed-forward terms are sent as zero; the payloads are
// fixed length so a field can only be zeroed, not omitted.
func (a *Axis) writeCommand() error {
	d := a.direction()
	turns := 2 * math.Pi * a.TransmissionRatio

	switch a.Mode() {
	case MODE_POSITION:
		msg := &SetInputPosMsg{InputPos: float32(d * a.PosSetpoint / turns)}
		if a.VelInputEnabled {
			msg.VelFF = float32(d * a.VelSetpoint / turns)
		}
		if a.TorqueInputEnabled {
			msg.TorqueFF = float32(d * a.TorqueSetpoint / a.TransmissionRatio)
		}
		return a.send(msg)

	case MODE_VELOCITY:
		msg := &SetInputVelMsg{InputVel: float32(d * a.VelSetpoint / turns)}
		if a.TorqueInputEnabled {
			msg.TorqueFF = float32(d * a.TorqueSetpoint / a.TransmissionRatio)
		}
		return a.send(msg)

	case MODE_TORQUE:
		return a.send(&SetInputTorqueMsg{
			InputTorque: float32(d * a.TorqueSetpoint / a.TransmissionRatio),
		})
	}

	// no input enabled - the last mode switch holds the node in idle
	return nil
}

// onMsg applies one inbound frame addressed to this axis. Unknown command
// ids are ignored so unrelated CAN-Simple traffic passes through; short
// frames are dropped without touching any estimate.
//
// Estimates negate on the non-reversed axis while commands negate on the
// reversed one. The nodes expect exactly this pairing, so both conversion
// paths keep their own sign rule.
func (a *Axis) onMsg(cmd uint8, data []byte) {
	scale := a.TransmissionRatio
	if !a.ReverseAxis {
		scale = -scale
	}

	switch cmd {
	case CMD_GET_ENCODER_ESTIMATES:
		var msg GetEncoderEstimatesMsg
		if err := msg.Decode(data); err != nil {
			log.Printf("axis %s: dropping cmd 0x%02x: %v", a.Name, cmd, err)
			return
		}
		a.PosEstimate = scale * 2 * math.Pi * float64(msg.PosEstimate)
		a.VelEstimate = scale * 2 * math.Pi * float64(msg.VelEstimate)

	case CMD_GET_TORQUES:
		var msg GetTorquesMsg
		if err := msg.Decode(data); err != nil {
			log.Printf("axis %s: dropping cmd 0x%02x: %v", a.Name, cmd, err)
			return
		}
		// the target is reported back to the upstream controller in the
		// node's own frame
		a.TorqueTarget = float64(msg.TorqueTarget)
		a.TorqueEstimate = scale * float64(msg.TorqueEstimate)

	case CMD_HEARTBEAT:
		var msg HeartbeatMsg
		if err := msg.Decode(data); err != nil {
			log.Printf("axis %s: dropping cmd 0x%02x: %v", a.Name, cmd, err)
			return
		}
		a.AxisError = msg.AxisError
		a.AxisState = msg.AxisState

	case CMD_GET_VERSION:
		var msg GetVersionMsg
		if err := msg.Decode(data); err != nil {
			log.Printf("axis %s: dropping cmd 0x%02x: %v", a.Name, cmd, err)
			return
		}
		a.FwVersion = msg.FwString()
	}
}
