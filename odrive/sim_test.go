package odrive

import (
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/NewHavenRobotics/ros-odrive/canbus"
)

func createSimController() (*SimBus, *Controller) {
	config := testConfig()
	sim := NewSimBus(config)
	controller, err := NewController(config)
	if err != nil {
		panic(err)
	}
	controller.ConfigureBus(sim)
	return sim, controller
}

func TestSimBus(t *testing.T) {
	Convey("a full velocity control session against the simulator", t, func() {
		sim, controller := createSimController()
		So(controller.Activate(), ShouldBeNil)
		So(controller.PerformCommandModeSwitch([]string{"joint1/velocity"}, nil), ShouldBeNil)

		axis := controller.AxisByName("joint1")
		axis.VelSetpoint = 2 * math.Pi // one motor turn per second

		// a few cycles: command, integrate, read telemetry back
		for i := 0; i < 10; i++ {
			So(controller.Write(time.Now()), ShouldBeNil)
			sim.Step(0.1)
			controller.Read(time.Now())
		}

		Convey("the estimate integrates the commanded velocity", func() {
			// 1 turn/s for ~1s, negated by the telemetry sign convention
			So(axis.PosEstimate, ShouldAlmostEqual, -2*math.Pi, 0.7)
			So(axis.VelEstimate, ShouldAlmostEqual, -2*math.Pi, 1e-3)
		})
	})

	Convey("idle nodes ignore setpoint frames", t, func() {
		sim, controller := createSimController()
		// never activated: axes stay idle
		axis := controller.AxisByName("joint1")
		axis.VelInputEnabled = true
		axis.VelSetpoint = 10

		So(axis.writeCommand(), ShouldBeNil)
		sim.Step(0.1)
		controller.Read(time.Now())

		So(axis.VelEstimate, ShouldEqual, 0)
	})

	Convey("version requests are answered", t, func() {
		_, controller := createSimController()
		So(controller.RequestVersions(), ShouldBeNil)
		controller.Read(time.Now())

		for _, axis := range controller.Axes() {
			So(axis.FwVersion, ShouldEqual, simFwVersion)
		}
		So(controller.CheckFirmware(), ShouldBeNil)
	})

	Convey("clear errors resets the simulated fault word", t, func() {
		sim, _ := createSimController()
		node := sim.nodes[1]
		node.axisError = 0x20

		msg := &ClearErrorsMsg{}
		sim.SendMsg(canbus.CANMsg{ID: frameID(1, msg.CmdID()), Data: msg.Encode()})
		So(node.axisError, ShouldEqual, 0)
	})
}
