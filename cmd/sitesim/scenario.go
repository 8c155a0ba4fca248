package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of site activity.
type Scenario struct {
	Name     string         `yaml:"name"`
	Nodes    []ScenarioNode `yaml:"nodes"`
	Vehicles []ScenarioCar  `yaml:"vehicles"`
	Steps    []Step         `yaml:"steps"`
}

type ScenarioNode struct {
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
}

type ScenarioCar struct {
	Registration string  `yaml:"registration"`
	Driver       string  `yaml:"driver"`
	Lat          float64 `yaml:"lat"`
	Lng          float64 `yaml:"lng"`
}

// Step waits Delay, then performs exactly one action.
type Step struct {
	Delay   time.Duration `yaml:"delay"`
	Reading *StepReading  `yaml:"reading,omitempty"`
	Move    *StepMove     `yaml:"move,omitempty"`
}

type StepReading struct {
	Node  string  `yaml:"node"`
	Type  string  `yaml:"type"`
	Value float64 `yaml:"value"`
}

type StepMove struct {
	Vehicle string  `yaml:"vehicle"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario and checks its references.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) Validate() error {
	nodes := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Name == "" {
			return errors.New("scenario node without a name")
		}
		if nodes[n.Name] {
			return fmt.Errorf("duplicate scenario node %q", n.Name)
		}
		nodes[n.Name] = true
	}
	vehicles := make(map[string]bool, len(s.Vehicles))
	for _, v := range s.Vehicles {
		if v.Registration == "" {
			return errors.New("scenario vehicle without a registration")
		}
		vehicles[v.Registration] = true
	}

	var errs []error
	for i, st := range s.Steps {
		switch {
		case st.Delay < 0:
			errs = append(errs, fmt.Errorf("step %d: negative delay", i+1))
		case (st.Reading == nil) == (st.Move == nil):
			errs = append(errs, fmt.Errorf("step %d: exactly one of reading or move is required", i+1))
		case st.Reading != nil && !nodes[st.Reading.Node]:
			errs = append(errs, fmt.Errorf("step %d: unknown node %q", i+1, st.Reading.Node))
		case st.Move != nil && !vehicles[st.Move.Vehicle]:
			errs = append(errs, fmt.Errorf("step %d: unknown vehicle %q", i+1, st.Move.Vehicle))
		}
	}
	return errors.Join(errs...)
}
