package odrive

import (
	"fmt"
	"log"
	"time"

	"github.com/Masterminds/semver"
	"github.com/NewHavenRobotics/ros-odrive/canbus"
)

// interface kind tags, matching the upstream controller's naming
const (
	HW_IF_POSITION = "position"
	HW_IF_VELOCITY = "velocity"
	HW_IF_EFFORT   = "effort"
)

// firmware releases the bridge is known to work against
const FW_VERSION_CONSTRAINT = "~0.6"

// HardwareInterface is one exported value handle, addressed by joint name
// and kind. The pointer stays valid for the life of the controller.
type HardwareInterface struct {
	Joint string
	Kind  string
	Value *float64
}

func (h HardwareInterface) String() string {
	return h.Joint + "/" + h.Kind
}

// Controller owns the axes and the transport and drives the control
// cycle: Read drains inbound telemetry, Write emits one command frame per
// axis, PerformCommandModeSwitch reacts to upstream claims on command
// interfaces.
//
// Everything here runs on a single control thread. The transport buffers
// inbound frames on its own goroutines, but all decode and state mutation
// happens inside Read.
type Controller struct {
	axes    []*Axis
	byNode  map[uint32]*Axis
	bus     canbus.CANBusInterface
	busName string
	active  bool
}

func NewController(config Config) (c *Controller, err error) {
	if err = config.Validate(); err != nil {
		return nil, err
	}

	c = &Controller{
		busName: config.Bus,
		byNode:  make(map[uint32]*Axis, len(config.Joints)),
	}

	for _, joint := range config.Joints {
		axis := NewAxis(joint.Name, joint.NodeID, joint.TransmissionRatio, joint.ReverseAxis)
		c.axes = append(c.axes, axis)
		c.byNode[axis.NodeID] = axis
	}

	return c, nil
}

// Configure opens the SocketCAN interface named in the config. A failure
// here is fatal and leaves no partial state behind.
func (c *Controller) Configure() error {
	bus, err := canbus.NewCANBus(c.busName)
	if err != nil {
		return fmt.Errorf("unable to initialize CAN on %s: %w", c.busName, err)
	}
	log.Printf("initialized CAN on %s", c.busName)
	c.ConfigureBus(bus)
	return nil
}

// ConfigureBus attaches an already open transport. The simulator and the
// tests inject their bus here instead of Configure.
func (c *Controller) ConfigureBus(bus canbus.CANBusInterface) {
	c.bus = bus
	for _, axis := range c.axes {
		axis.bus = bus
	}
}

// Activate arms the controller. The axes only leave idle once the
// upstream controller claims command interfaces, which can happen seconds
// later; until then the mode switch below keeps them idle.
func (c *Controller) Activate() error {
	log.Println("activating axes...")
	c.active = true

	for _, axis := range c.axes {
		if err := c.setAxisCommandMode(axis); err != nil {
			return err
		}
	}
	return nil
}

// Deactivate disarms the controller and idles every axis.
func (c *Controller) Deactivate() error {
	log.Println("deactivating axes...")
	c.active = false

	for _, axis := range c.axes {
		if err := c.setAxisCommandMode(axis); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup releases the transport.
func (c *Controller) Cleanup() error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Close()
}

func (c *Controller) Axes() []*Axis { return c.axes }

func (c *Controller) AxisByName(name string) *Axis {
	for _, axis := range c.axes {
		if axis.Name == name {
			return axis
		}
	}
	return nil
}

// StateInterfaces exports the per-joint estimate handles, read by the
// upstream controller after every Read.
func (c *Controller) StateInterfaces() (out []HardwareInterface) {
	for _, axis := range c.axes {
		out = append(out,
			HardwareInterface{axis.Name, HW_IF_EFFORT, &axis.TorqueTarget},
			HardwareInterface{axis.Name, HW_IF_VELOCITY, &axis.VelEstimate},
			HardwareInterface{axis.Name, HW_IF_POSITION, &axis.PosEstimate},
		)
	}
	return
}

// CommandInterfaces exports the per-joint setpoint handles, written by
// the upstream controller before every Write.
func (c *Controller) CommandInterfaces() (out []HardwareInterface) {
	for _, axis := range c.axes {
		out = append(out,
			HardwareInterface{axis.Name, HW_IF_EFFORT, &axis.TorqueSetpoint},
			HardwareInterface{axis.Name, HW_IF_VELOCITY, &axis.VelSetpoint},
			HardwareInterface{axis.Name, HW_IF_POSITION, &axis.PosSetpoint},
		)
	}
	return
}

// PerformCommandModeSwitch flips the input enable flags named by the
// start and stop lists ("<joint>/<kind>") and reprograms every axis whose
// flag set changed. Stops apply before starts.
func (c *Controller) PerformCommandModeSwitch(start, stop []string) error {
	for _, axis := range c.axes {
		flags := map[string]*bool{
			axis.Name + "/" + HW_IF_POSITION: &axis.PosInputEnabled,
			axis.Name + "/" + HW_IF_VELOCITY: &axis.VelInputEnabled,
			axis.Name + "/" + HW_IF_EFFORT:   &axis.TorqueInputEnabled,
		}

		switched := false
		for _, key := range stop {
			if flag, ok := flags[key]; ok {
				*flag = false
				switched = true
			}
		}
		for _, key := range start {
			if flag, ok := flags[key]; ok {
				*flag = true
				switched = true
			}
		}

		if switched {
			if err := c.setAxisCommandMode(axis); err != nil {
				return err
			}
		}
	}
	return nil
}

// setAxisCommandMode programs the node for the axis's derived mode. While
// the controller is inactive the only thing ever sent is an idle request.
func (c *Controller) setAxisCommandMode(axis *Axis) error {
	if !c.active {
		log.Printf("axis %s: interface inactive, setting to idle", axis.Name)
		axis.mode = MODE_IDLE
		return axis.send(&SetAxisStateMsg{RequestedState: AXIS_STATE_IDLE})
	}

	mode := axis.Mode()
	if mode == MODE_IDLE {
		log.Printf("axis %s: no input enabled, setting to idle", axis.Name)
		axis.mode = MODE_IDLE
		return axis.send(&SetAxisStateMsg{RequestedState: AXIS_STATE_IDLE})
	}

	if mode == MODE_POSITION && axis.mode != MODE_POSITION {
		// hold the current position until the first upstream command, so
		// a stale setpoint cannot command a jump
		axis.PosSetpoint = axis.PosEstimate
		axis.VelSetpoint = 0
		axis.TorqueSetpoint = 0
	}
	axis.mode = mode

	var ctrl uint32
	switch mode {
	case MODE_POSITION:
		ctrl = CONTROL_MODE_POSITION_CONTROL
	case MODE_VELOCITY:
		ctrl = CONTROL_MODE_VELOCITY_CONTROL
	case MODE_TORQUE:
		ctrl = CONTROL_MODE_TORQUE_CONTROL
	}

	log.Printf("axis %s: setting to %s control", axis.Name, mode)

	// mode first, then clear stale faults, then request closed loop
	if err := axis.send(&SetControllerModeMsg{ControlMode: ctrl, InputMode: INPUT_MODE_PASSTHROUGH}); err != nil {
		return err
	}
	if err := axis.send(&ClearErrorsMsg{}); err != nil {
		return err
	}
	return axis.send(&SetAxisStateMsg{RequestedState: AXIS_STATE_CLOSED_LOOP_CONTROL})
}

// Read drains every frame the transport has buffered and applies each to
// the owning axis. Frames for unknown node ids are dropped.
func (c *Controller) Read(_ time.Time) {
	for {
		msg, ok := c.bus.Recv()
		if !ok {
			return
		}
		if msg.RTR {
			// remote requests carry no data
			continue
		}
		if axis, ok := c.byNode[frameNode(msg.ID)]; ok {
			axis.onMsg(frameCmd(msg.ID), msg.Data)
		}
	}
}

// Write emits at most one setpoint frame per axis, carrying the live
// setpoints every cycle. While inactive every axis is held in idle
// instead, whatever the enable flags say.
func (c *Controller) Write(_ time.Time) error {
	for _, axis := range c.axes {
		if !c.active {
			if err := axis.send(&SetAxisStateMsg{RequestedState: AXIS_STATE_IDLE}); err != nil {
				return err
			}
			continue
		}
		if err := axis.writeCommand(); err != nil {
			return err
		}
	}
	return nil
}

// RequestVersions asks every node for its firmware version. Responses
// come back as ordinary frames and are decoded on later Read cycles.
func (c *Controller) RequestVersions() error {
	for _, axis := range c.axes {
		msg := canbus.CANMsg{ID: frameID(axis.NodeID, CMD_GET_VERSION), RTR: true}
		if err := c.bus.SendMsg(msg); err != nil {
			return err
		}
	}
	return nil
}

// CheckFirmware verifies every axis that has reported a version against
// FW_VERSION_CONSTRAINT. Axes that have not reported yet are skipped.
func (c *Controller) CheckFirmware() error {
	constraint, err := semver.NewConstraint(FW_VERSION_CONSTRAINT)
	if err != nil {
		return err
	}

	for _, axis := range c.axes {
		if axis.FwVersion == "" {
			continue
		}

		version, err := semver.NewVersion(axis.FwVersion)
		if err != nil {
			return fmt.Errorf("axis %s: bad firmware version %q: %w", axis.Name, axis.FwVersion, err)
		}
		if !constraint.Check(version) {
			return fmt.Errorf("unable to use axis %s: firmware %s - require %s",
				axis.Name, axis.FwVersion, FW_VERSION_CONSTRAINT)
		}
	}
	return nil
}
