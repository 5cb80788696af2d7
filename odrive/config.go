package odrive

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// JointConfig describes one joint and the node that drives it.
type JointConfig struct {
	Name              string
	NodeID            uint32
	TransmissionRatio float64
	ReverseAxis       bool
}

type yamlJoint struct {
	Name              string   `yaml:"name"`
	NodeID            *uint32  `yaml:"node_id"`
	TransmissionRatio *float64 `yaml:"transmission_ratio"`
	ReverseAxis       bool     `yaml:"reverse_axis"`
}

func (j *JointConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var yj yamlJoint
	if err := unmarshal(&yj); err != nil {
		return err
	}
	if yj.NodeID == nil {
		return fmt.Errorf("joint %q: node_id is required", yj.Name)
	}

	j.Name = yj.Name
	j.NodeID = *yj.NodeID
	j.TransmissionRatio = 1.0
	if yj.TransmissionRatio != nil {
		j.TransmissionRatio = *yj.TransmissionRatio
	}
	j.ReverseAxis = yj.ReverseAxis
	return nil
}

func (j JointConfig) MarshalYAML() (interface{}, error) {
	nodeID := j.NodeID
	ratio := j.TransmissionRatio
	return &yamlJoint{
		Name:              j.Name,
		NodeID:            &nodeID,
		TransmissionRatio: &ratio,
		ReverseAxis:       j.ReverseAxis,
	}, nil
}

// Config is the static bus description loaded at startup.
type Config struct {
	Bus    string        `yaml:"bus"`
	Joints []JointConfig `yaml:"joints"`
}

func LoadConfig(path string) (config Config, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("unable to read config file: %w", err)
	}
	if err = yaml.Unmarshal(raw, &config); err != nil {
		return config, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	err = config.Validate()
	return
}

func (c Config) Validate() error {
	if c.Bus == "" {
		return errors.New("bus interface name is required")
	}
	if len(c.Joints) == 0 {
		return errors.New("at least one joint is required")
	}

	seen := make(map[uint32]string, len(c.Joints))
	for _, joint := range c.Joints {
		if joint.Name == "" {
			return fmt.Errorf("joint with node id %d: name is required", joint.NodeID)
		}
		if joint.TransmissionRatio <= 0 {
			return fmt.Errorf("joint %q: transmission_ratio must be positive", joint.Name)
		}
		if prev, dup := seen[joint.NodeID]; dup {
			return fmt.Errorf("joints %q and %q share node id %d", prev, joint.Name, joint.NodeID)
		}
		seen[joint.NodeID] = joint.Name
	}
	return nil
}
