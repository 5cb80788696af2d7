package main

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/caarlos0/env/v6"

	"github.com/NewHavenRobotics/ros-odrive/odrive"
)

type EnvConfig struct {
	CONFIG string `env:"ODRIVE_CONFIG" envDefault:"./odrive.yaml"`
	CAN    string `env:"CAN_IFACE"`
	SIM    bool   `env:"SIM" envDefault:"0"`
	RATE   int    `env:"CONTROL_RATE" envDefault:"100"`
}

func main() {
	ENV := new(EnvConfig)
	env.Parse(ENV)

	config, err := odrive.LoadConfig(ENV.CONFIG)
	if err != nil {
		log.Fatalf("unable to load %s: %v", ENV.CONFIG, err)
	}
	if ENV.CAN != "" {
		config.Bus = ENV.CAN
	}

	controller, err := odrive.NewController(config)
	if err != nil {
		log.Fatalf("unable to create controller: %v", err)
	}

	var sim *odrive.SimBus
	if ENV.SIM {
		log.Println("running against simulated nodes")
		sim = odrive.NewSimBus(config)
		controller.ConfigureBus(sim)
	} else if err = controller.Configure(); err != nil {
		log.Fatalf("unable to configure: %v", err)
	}
	defer controller.Cleanup()

	// The shell and the control loop share the controller, so every
	// access below holds this lock to keep the single-thread contract.
	var mu sync.Mutex

	period := time.Second / time.Duration(ENV.RATE)
	go func() {
		for range time.Tick(period) {
			mu.Lock()
			if sim != nil {
				sim.Step(period.Seconds())
			}
			now := time.Now()
			controller.Read(now)
			controller.Write(now)
			mu.Unlock()
		}
	}()

	withAxis := func(c *ishell.Context, usage string, fn func(axis *odrive.Axis, value float64)) {
		if len(c.Args) != 2 {
			c.Println("usage:", usage)
			return
		}
		axis := controller.AxisByName(c.Args[0])
		if axis == nil {
			c.Printf("unknown joint %q\n", c.Args[0])
			return
		}
		value, err := strconv.ParseFloat(c.Args[1], 64)
		if err != nil {
			c.Printf("bad value %q\n", c.Args[1])
			return
		}
		mu.Lock()
		fn(axis, value)
		mu.Unlock()
	}

	shell := ishell.New()
	shell.Println("ODrive CAN bridge shell")

	shell.AddCmd(&ishell.Cmd{
		Name: "activate",
		Help: "arm the controller",
		Func: func(c *ishell.Context) {
			mu.Lock()
			defer mu.Unlock()
			if err := controller.Activate(); err != nil {
				c.Println("error:", err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "deactivate",
		Help: "disarm the controller and idle all axes",
		Func: func(c *ishell.Context) {
			mu.Lock()
			defer mu.Unlock()
			if err := controller.Deactivate(); err != nil {
				c.Println("error:", err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "start",
		Help: "start <joint>/<position|velocity|effort> - claim a command interface",
		Func: func(c *ishell.Context) {
			mu.Lock()
			defer mu.Unlock()
			if err := controller.PerformCommandModeSwitch(c.Args, nil); err != nil {
				c.Println("error:", err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop <joint>/<position|velocity|effort> - release a command interface",
		Func: func(c *ishell.Context) {
			mu.Lock()
			defer mu.Unlock()
			if err := controller.PerformCommandModeSwitch(nil, c.Args); err != nil {
				c.Println("error:", err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "pos",
		Help: "pos <joint> <rad>",
		Func: func(c *ishell.Context) {
			withAxis(c, "pos <joint> <rad>", func(axis *odrive.Axis, value float64) { axis.PosSetpoint = value })
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "vel",
		Help: "vel <joint> <rad/s>",
		Func: func(c *ishell.Context) {
			withAxis(c, "vel <joint> <rad/s>", func(axis *odrive.Axis, value float64) { axis.VelSetpoint = value })
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "torque",
		Help: "torque <joint> <Nm>",
		Func: func(c *ishell.Context) {
			withAxis(c, "torque <joint> <Nm>", func(axis *odrive.Axis, value float64) { axis.TorqueSetpoint = value })
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "dump estimates for all joints",
		Func: func(c *ishell.Context) {
			mu.Lock()
			defer mu.Unlock()
			for _, axis := range controller.Axes() {
				c.Printf("%-12s mode=%-8s pos=%8.4f rad  vel=%8.4f rad/s  torque=%8.4f Nm  err=0x%08x\n",
					axis.Name, axis.Mode(), axis.PosEstimate, axis.VelEstimate, axis.TorqueEstimate, axis.AxisError)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "fw",
		Help: "request and check node firmware versions",
		Func: func(c *ishell.Context) {
			mu.Lock()
			if err := controller.RequestVersions(); err != nil {
				mu.Unlock()
				c.Println("error:", err)
				return
			}
			mu.Unlock()

			// give the nodes a couple of cycles to answer
			time.Sleep(5 * period)

			mu.Lock()
			defer mu.Unlock()
			for _, axis := range controller.Axes() {
				version := axis.FwVersion
				if version == "" {
					version = "(no response)"
				}
				c.Println(fmt.Sprintf("%-12s fw %s", axis.Name, version))
			}
			if err := controller.CheckFirmware(); err != nil {
				c.Println("error:", err)
			}
		},
	})

	shell.Start()
}
