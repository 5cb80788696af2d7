package odrive

import (
	"github.com/NewHavenRobotics/ros-odrive/canbus"
)

// firmware version the simulated nodes report
const simFwVersion = "0.6.8"

// SimBus emulates a bank of nodes behind the transport interface so the
// bridge can run without hardware. Position commands are taken as
// reached immediately (passthrough), velocity commands integrate on
// Step, torque commands echo back as target and estimate.
type SimBus struct {
	nodes map[uint32]*simNode
	rx    []canbus.CANMsg
}

type simNode struct {
	pos    float64 // [turns], motor frame
	vel    float64 // [turns/s]
	torque float64 // [Nm]

	state       uint32
	controlMode uint32
	axisError   uint32
}

func NewSimBus(config Config) *SimBus {
	s := &SimBus{nodes: make(map[uint32]*simNode, len(config.Joints))}
	for _, joint := range config.Joints {
		s.nodes[joint.NodeID] = &simNode{state: AXIS_STATE_IDLE}
	}
	return s
}

func (s *SimBus) SendMsg(msg canbus.CANMsg) error {
	node, ok := s.nodes[frameNode(msg.ID)]
	if !ok {
		// not one of ours, a real bus would just carry it
		return nil
	}

	cmd := frameCmd(msg.ID)

	if msg.RTR {
		if cmd == CMD_GET_VERSION {
			s.queueVersion(msg.ID &^ 0x1F)
		}
		return nil
	}

	switch cmd {
	case CMD_SET_AXIS_STATE:
		var m SetAxisStateMsg
		if m.Decode(msg.Data) == nil {
			node.state = m.RequestedState
			if node.state == AXIS_STATE_IDLE {
				node.vel = 0
				node.torque = 0
			}
		}

	case CMD_SET_CONTROLLER_MODE:
		var m SetControllerModeMsg
		if m.Decode(msg.Data) == nil {
			node.controlMode = m.ControlMode
		}

	case CMD_CLEAR_ERRORS:
		node.axisError = 0

	case CMD_SET_INPUT_POS:
		var m SetInputPosMsg
		if m.Decode(msg.Data) == nil && node.state == AXIS_STATE_CLOSED_LOOP_CONTROL {
			node.pos = float64(m.InputPos)
			node.vel = float64(m.VelFF)
			node.torque = float64(m.TorqueFF)
		}

	case CMD_SET_INPUT_VEL:
		var m SetInputVelMsg
		if m.Decode(msg.Data) == nil && node.state == AXIS_STATE_CLOSED_LOOP_CONTROL {
			node.vel = float64(m.InputVel)
			node.torque = float64(m.TorqueFF)
		}

	case CMD_SET_INPUT_TORQUE:
		var m SetInputTorqueMsg
		if m.Decode(msg.Data) == nil && node.state == AXIS_STATE_CLOSED_LOOP_CONTROL {
			node.torque = float64(m.InputTorque)
		}
	}

	return nil
}

func (s *SimBus) Recv() (msg canbus.CANMsg, ok bool) {
	if len(s.rx) == 0 {
		return msg, false
	}
	msg = s.rx[0]
	s.rx = s.rx[1:]
	return msg, true
}

func (s *SimBus) Close() error {
	s.rx = nil
	return nil
}

// Step advances the node models by dt seconds and queues one round of
// telemetry per node.
func (s *SimBus) Step(dt float64) {
	for id, node := range s.nodes {
		if node.state == AXIS_STATE_CLOSED_LOOP_CONTROL && node.controlMode == CONTROL_MODE_VELOCITY_CONTROL {
			node.pos += node.vel * dt
		}

		s.queue(id, &GetEncoderEstimatesMsg{
			PosEstimate: float32(node.pos),
			VelEstimate: float32(node.vel),
		})
		s.queue(id, &GetTorquesMsg{
			TorqueTarget:   float32(node.torque),
			TorqueEstimate: float32(node.torque),
		})
		s.queue(id, &HeartbeatMsg{
			AxisError: node.axisError,
			AxisState: uint8(node.state),
		})
	}
}

func (s *SimBus) queue(nodeID uint32, m Msg) {
	s.rx = append(s.rx, canbus.CANMsg{
		ID:   frameID(nodeID, m.CmdID()),
		Data: m.Encode(),
	})
}

func (s *SimBus) queueVersion(id uint32) {
	var m GetVersionMsg
	m.ProtocolVersion = 2
	m.HwMajor, m.HwMinor = 4, 4
	m.FwMajor, m.FwMinor, m.FwRevision = 0, 6, 8
	s.rx = append(s.rx, canbus.CANMsg{ID: id | CMD_GET_VERSION, Data: m.Encode()})
}
