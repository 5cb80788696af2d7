package odrive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CAN-Simple command ids, carried in the low 5 bits of the arbitration id.
const (
	CMD_GET_VERSION           = 0x00
	CMD_HEARTBEAT             = 0x01
	CMD_SET_AXIS_STATE        = 0x07
	CMD_GET_ENCODER_ESTIMATES = 0x09
	CMD_SET_CONTROLLER_MODE   = 0x0B
	CMD_SET_INPUT_POS         = 0x0C
	CMD_SET_INPUT_VEL         = 0x0D
	CMD_SET_INPUT_TORQUE      = 0x0E
	CMD_CLEAR_ERRORS          = 0x18
	CMD_GET_TORQUES           = 0x1C
)

// node states and modes as defined by the ODrive firmware
const (
	AXIS_STATE_IDLE                = 1
	AXIS_STATE_CLOSED_LOOP_CONTROL = 8

	CONTROL_MODE_TORQUE_CONTROL   = 1
	CONTROL_MODE_VELOCITY_CONTROL = 2
	CONTROL_MODE_POSITION_CONTROL = 3

	INPUT_MODE_PASSTHROUGH = 1
)

// feed-forward fields ride as int16 thousandths
const ffScale = 0.001

// errors
var (
	ERR_SHORT_FRAME = errors.New("frame shorter than message length")
)

// Msg is one fixed-layout CAN-Simple payload. Encode is total: a message
// always packs to exactly MsgLength bytes, disabled fields included.
type Msg interface {
	CmdID() uint8
	MsgLength() int
	Encode() []byte
}

// arbitration id layout: 11 bits = node_id<<5 | cmd_id
func frameID(nodeID uint32, cmd uint8) uint32 { return nodeID<<5 | uint32(cmd)&0x1F }
func frameNode(id uint32) uint32              { return id >> 5 }
func frameCmd(id uint32) uint8                { return uint8(id & 0x1F) }

// SetAxisStateMsg requests a node state transition (idle, closed loop, ...).
type SetAxisStateMsg struct {
	RequestedState uint32
}

func (m *SetAxisStateMsg) CmdID() uint8   { return CMD_SET_AXIS_STATE }
func (m *SetAxisStateMsg) MsgLength() int { return 4 }

func (m *SetAxisStateMsg) Encode() []byte {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw[0:4], m.RequestedState)
	return raw
}

func (m *SetAxisStateMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.RequestedState = binary.LittleEndian.Uint32(raw[0:4])
	return nil
}

// SetControllerModeMsg selects the control mode and input mode of a node.
type SetControllerModeMsg struct {
	ControlMode uint32
	InputMode   uint32
}

func (m *SetControllerModeMsg) CmdID() uint8   { return CMD_SET_CONTROLLER_MODE }
func (m *SetControllerModeMsg) MsgLength() int { return 8 }

func (m *SetControllerModeMsg) Encode() []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], m.ControlMode)
	binary.LittleEndian.PutUint32(raw[4:8], m.InputMode)
	return raw
}

func (m *SetControllerModeMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.ControlMode = binary.LittleEndian.Uint32(raw[0:4])
	m.InputMode = binary.LittleEndian.Uint32(raw[4:8])
	return nil
}

// ClearErrorsMsg clears latched node faults. Identify != 0 also flashes
// the status LED for physical identification.
type ClearErrorsMsg struct {
	Identify uint8
}

func (m *ClearErrorsMsg) CmdID() uint8   { return CMD_CLEAR_ERRORS }
func (m *ClearErrorsMsg) MsgLength() int { return 1 }

func (m *ClearErrorsMsg) Encode() []byte {
	return []byte{m.Identify}
}

// SetInputPosMsg commands a position setpoint with optional velocity and
// torque feed-forward. Units are motor turns; feed-forward terms are
// packed as int16 thousandths.
type SetInputPosMsg struct {
	InputPos float32 // [turns]
	VelFF    float32 // [turns/s]
	TorqueFF float32 // [Nm]
}

func (m *SetInputPosMsg) CmdID() uint8   { return CMD_SET_INPUT_POS }
func (m *SetInputPosMsg) MsgLength() int { return 8 }

func (m *SetInputPosMsg) Encode() []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], math.Float32bits(m.InputPos))
	binary.LittleEndian.PutUint16(raw[4:6], uint16(int16(math.Round(float64(m.VelFF)/ffScale))))
	binary.LittleEndian.PutUint16(raw[6:8], uint16(int16(math.Round(float64(m.TorqueFF)/ffScale))))
	return raw
}

func (m *SetInputPosMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.InputPos = math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4]))
	m.VelFF = float32(float64(int16(binary.LittleEndian.Uint16(raw[4:6]))) * ffScale)
	m.TorqueFF = float32(float64(int16(binary.LittleEndian.Uint16(raw[6:8]))) * ffScale)
	return nil
}

// SetInputVelMsg commands a velocity setpoint with optional torque
// feed-forward.
type SetInputVelMsg struct {
	InputVel float32 // [turns/s]
	TorqueFF float32 // [Nm]
}

func (m *SetInputVelMsg) CmdID() uint8   { return CMD_SET_INPUT_VEL }
func (m *SetInputVelMsg) MsgLength() int { return 8 }

func (m *SetInputVelMsg) Encode() []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], math.Float32bits(m.InputVel))
	binary.LittleEndian.PutUint32(raw[4:8], math.Float32bits(m.TorqueFF))
	return raw
}

func (m *SetInputVelMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.InputVel = math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4]))
	m.TorqueFF = math.Float32frombits(binary.LittleEndian.Uint32(raw[4:8]))
	return nil
}

// SetInputTorqueMsg commands a torque setpoint.
type SetInputTorqueMsg struct {
	InputTorque float32 // [Nm]
}

func (m *SetInputTorqueMsg) CmdID() uint8   { return CMD_SET_INPUT_TORQUE }
func (m *SetInputTorqueMsg) MsgLength() int { return 4 }

func (m *SetInputTorqueMsg) Encode() []byte {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw[0:4], math.Float32bits(m.InputTorque))
	return raw
}

func (m *SetInputTorqueMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.InputTorque = math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4]))
	return nil
}

// GetEncoderEstimatesMsg is the periodic encoder telemetry frame.
type GetEncoderEstimatesMsg struct {
	PosEstimate float32 // [turns]
	VelEstimate float32 // [turns/s]
}

func (m *GetEncoderEstimatesMsg) CmdID() uint8   { return CMD_GET_ENCODER_ESTIMATES }
func (m *GetEncoderEstimatesMsg) MsgLength() int { return 8 }

func (m *GetEncoderEstimatesMsg) Encode() []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], math.Float32bits(m.PosEstimate))
	binary.LittleEndian.PutUint32(raw[4:8], math.Float32bits(m.VelEstimate))
	return raw
}

func (m *GetEncoderEstimatesMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.PosEstimate = math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4]))
	m.VelEstimate = math.Float32frombits(binary.LittleEndian.Uint32(raw[4:8]))
	return nil
}

// GetTorquesMsg is the periodic torque telemetry frame.
type GetTorquesMsg struct {
	TorqueTarget   float32 // [Nm]
	TorqueEstimate float32 // [Nm]
}

func (m *GetTorquesMsg) CmdID() uint8   { return CMD_GET_TORQUES }
func (m *GetTorquesMsg) MsgLength() int { return 8 }

func (m *GetTorquesMsg) Encode() []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], math.Float32bits(m.TorqueTarget))
	binary.LittleEndian.PutUint32(raw[4:8], math.Float32bits(m.TorqueEstimate))
	return raw
}

func (m *GetTorquesMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.TorqueTarget = math.Float32frombits(binary.LittleEndian.Uint32(raw[0:4]))
	m.TorqueEstimate = math.Float32frombits(binary.LittleEndian.Uint32(raw[4:8]))
	return nil
}

// HeartbeatMsg is the periodic node status frame.
type HeartbeatMsg struct {
	AxisError       uint32
	AxisState       uint8
	ProcedureResult uint8
	TrajectoryDone  uint8
}

func (m *HeartbeatMsg) CmdID() uint8   { return CMD_HEARTBEAT }
func (m *HeartbeatMsg) MsgLength() int { return 7 }

func (m *HeartbeatMsg) Encode() []byte {
	raw := make([]byte, 7)
	binary.LittleEndian.PutUint32(raw[0:4], m.AxisError)
	raw[4] = m.AxisState
	raw[5] = m.ProcedureResult
	raw[6] = m.TrajectoryDone
	return raw
}

func (m *HeartbeatMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.AxisError = binary.LittleEndian.Uint32(raw[0:4])
	m.AxisState = raw[4]
	m.ProcedureResult = raw[5]
	m.TrajectoryDone = raw[6]
	return nil
}

// GetVersionMsg is the response to a version request (RTR on cmd 0x00).
type GetVersionMsg struct {
	ProtocolVersion uint8
	HwMajor         uint8
	HwMinor         uint8
	HwVariant       uint8
	FwMajor         uint8
	FwMinor         uint8
	FwRevision      uint8
	FwUnreleased    uint8
}

func (m *GetVersionMsg) CmdID() uint8   { return CMD_GET_VERSION }
func (m *GetVersionMsg) MsgLength() int { return 8 }

func (m *GetVersionMsg) Encode() []byte {
	return []byte{
		m.ProtocolVersion,
		m.HwMajor, m.HwMinor, m.HwVariant,
		m.FwMajor, m.FwMinor, m.FwRevision, m.FwUnreleased,
	}
}

func (m *GetVersionMsg) Decode(raw []byte) error {
	if len(raw) < m.MsgLength() {
		return ERR_SHORT_FRAME
	}
	m.ProtocolVersion = raw[0]
	m.HwMajor, m.HwMinor, m.HwVariant = raw[1], raw[2], raw[3]
	m.FwMajor, m.FwMinor, m.FwRevision, m.FwUnreleased = raw[4], raw[5], raw[6], raw[7]
	return nil
}

// FwString renders the firmware version for semver comparison.
func (m *GetVersionMsg) FwString() string {
	return fmt.Sprintf("%d.%d.%d", m.FwMajor, m.FwMinor, m.FwRevision)
}
