package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trickle-sim/internal/clock"
	"trickle-sim/internal/packet"
	"trickle-sim/internal/random"
	"trickle-sim/internal/trickle"
)

// Firmware constants.
const (
	DefaultBaseAddress  uint16 = 0x150c
	DefaultIntervalMin         = 10 * time.Second
	DefaultMaxDoublings uint   = 7
	DefaultRedundancy   uint   = 4
	DefaultHopSize      uint16 = 1
	DefaultSpacing             = 100.0
)

type NodeCfg struct {
	Count       int           `yaml:"count" json:"count"`
	BaseAddress uint16        `yaml:"base_address" json:"base_address"`
	Placement   string        `yaml:"placement" json:"placement"` // line | grid
	Spacing     float64       `yaml:"spacing" json:"spacing"`
	JoinDelay   time.Duration `yaml:"join_delay" json:"join_delay"`
}

type TrickleCfg struct {
	IntervalMin  time.Duration `yaml:"interval_min" json:"interval_min"`
	MaxDoublings *uint         `yaml:"max_doublings" json:"max_doublings"`
	Redundancy   *uint         `yaml:"redundancy" json:"redundancy"`
	InitialValue int32         `yaml:"initial_value" json:"initial_value"`
	Ordering     string        `yaml:"ordering" json:"ordering"` // integer | serial
}

type AdmissionCfg struct {
	MultiHop *bool   `yaml:"multi_hop" json:"multi_hop"`
	HopSize  *uint16 `yaml:"hop_size" json:"hop_size"`
}

type RadioCfg struct {
	AirTime  time.Duration `yaml:"air_time" json:"air_time"`
	MaxRange float64       `yaml:"max_range" json:"max_range"`
	Loss     float64       `yaml:"loss" json:"loss"`
	CCA      bool          `yaml:"cca" json:"cca"`
}

// Trigger is an operator input at a point in the run: a button press, or an
// explicit value when Value is set.
type Trigger struct {
	At    time.Duration `yaml:"at" json:"at"`
	Node  uint16        `yaml:"node" json:"node"`
	Press bool          `yaml:"press" json:"press"`
	Value *int32        `yaml:"value" json:"value"`
}

type LogCfg struct {
	MetricsFile     string        `yaml:"metrics_file" json:"metrics_file"`
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
}

type ServerCfg struct {
	Addr     string `yaml:"addr" json:"addr"`
	MaxConns int    `yaml:"max_conns" json:"max_conns"`
}

type MQTTCfg struct {
	Broker      string `yaml:"broker" json:"broker"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
}

type Scenario struct {
	Duration  time.Duration `yaml:"duration" json:"duration"`
	Seed      int64         `yaml:"seed" json:"seed"`
	Virtual   bool          `yaml:"virtual" json:"virtual"`
	Step      time.Duration `yaml:"virtual_step" json:"virtual_step"`
	Entropy   string        `yaml:"entropy" json:"entropy"` // seeded | crypto
	Nodes     NodeCfg       `yaml:"nodes" json:"nodes"`
	Trickle   TrickleCfg    `yaml:"trickle" json:"trickle"`
	Admission AdmissionCfg  `yaml:"admission" json:"admission"`
	Radio     RadioCfg      `yaml:"radio" json:"radio"`
	Triggers  []Trigger     `yaml:"triggers" json:"triggers"`
	Logging   LogCfg        `yaml:"logging" json:"logging"`
	Server    ServerCfg     `yaml:"server" json:"server"`
	MQTT      MQTTCfg       `yaml:"mqtt" json:"mqtt"`
}

func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	if yaml.Unmarshal(f, sc) != nil {
		// fallback JSON
		*sc = Scenario{}
		if err := json.Unmarshal(f, sc); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", path, err)
		}
	}
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// ApplyDefaults fills unset fields with the firmware constants.
func (sc *Scenario) ApplyDefaults() {
	if sc.Duration == 0 {
		sc.Duration = 5 * time.Minute
	}
	if sc.Step == 0 {
		sc.Step = clock.DefaultStep
	}
	if sc.Entropy == "" {
		sc.Entropy = "seeded"
	}
	if sc.Nodes.Count == 0 {
		sc.Nodes.Count = 5
	}
	if sc.Nodes.BaseAddress == 0 {
		sc.Nodes.BaseAddress = DefaultBaseAddress
	}
	if sc.Nodes.Placement == "" {
		sc.Nodes.Placement = "line"
	}
	if sc.Nodes.Spacing == 0 {
		sc.Nodes.Spacing = DefaultSpacing
	}
	if sc.Trickle.IntervalMin == 0 {
		sc.Trickle.IntervalMin = DefaultIntervalMin
	}
	if sc.Trickle.MaxDoublings == nil {
		d := DefaultMaxDoublings
		sc.Trickle.MaxDoublings = &d
	}
	if sc.Trickle.Redundancy == nil {
		k := DefaultRedundancy
		sc.Trickle.Redundancy = &k
	}
	if sc.Admission.MultiHop == nil {
		on := true
		sc.Admission.MultiHop = &on
	}
	if sc.Admission.HopSize == nil {
		h := DefaultHopSize
		sc.Admission.HopSize = &h
	}
	if sc.Server.MaxConns == 0 {
		sc.Server.MaxConns = 32
	}
	if sc.MQTT.ClientID == "" {
		sc.MQTT.ClientID = "trickle-sim"
	}
	if sc.MQTT.TopicPrefix == "" {
		sc.MQTT.TopicPrefix = "trickle"
	}
}

// TrickleConfig returns the per-node engine constants. Call after ApplyDefaults.
func (sc *Scenario) TrickleConfig() (trickle.Config, error) {
	newer, err := trickle.OrderingByName(sc.Trickle.Ordering)
	if err != nil {
		return trickle.Config{}, err
	}
	cfg := trickle.Config{
		IntervalMin:  sc.Trickle.IntervalMin,
		InitialValue: trickle.Value(sc.Trickle.InitialValue),
		Newer:        newer,
	}
	if sc.Trickle.MaxDoublings != nil {
		cfg.MaxDoublings = *sc.Trickle.MaxDoublings
	}
	if sc.Trickle.Redundancy != nil {
		cfg.Redundancy = *sc.Trickle.Redundancy
	}
	return cfg, nil
}

// Addr returns the short address of the i-th node.
func (sc *Scenario) Addr(i int) uint16 {
	return sc.Nodes.BaseAddress + uint16(i)
}

// JoinAt is when the i-th node joins. Nodes joining at zero are joined
// before the run starts.
func (sc *Scenario) JoinAt(i int) time.Duration {
	return time.Duration(i) * sc.Nodes.JoinDelay
}

func (sc *Scenario) Validate() error {
	if sc.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if sc.Step <= 0 {
		return fmt.Errorf("virtual_step must be positive")
	}
	if sc.Nodes.Count <= 0 {
		return fmt.Errorf("nodes.count must be positive")
	}
	if int(sc.Nodes.BaseAddress)+sc.Nodes.Count > int(packet.BROADCAST_ADDR) {
		return fmt.Errorf("%d nodes from %04x run into the broadcast address", sc.Nodes.Count, sc.Nodes.BaseAddress)
	}
	switch sc.Nodes.Placement {
	case "line", "grid":
	default:
		return fmt.Errorf("unknown placement %q (want line or grid)", sc.Nodes.Placement)
	}
	if _, err := random.New(sc.Entropy, 0); err != nil {
		return err
	}
	cfg, err := sc.TrickleConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("trickle: %w", err)
	}
	if sc.Radio.Loss < 0 || sc.Radio.Loss > 1 {
		return fmt.Errorf("radio.loss %v outside [0,1]", sc.Radio.Loss)
	}
	for i, tr := range sc.Triggers {
		if tr.Press == (tr.Value != nil) {
			return fmt.Errorf("trigger %d: set exactly one of press and value", i)
		}
		if tr.Node < sc.Nodes.BaseAddress || int(tr.Node) >= int(sc.Nodes.BaseAddress)+sc.Nodes.Count {
			return fmt.Errorf("trigger %d: no node %04x", i, tr.Node)
		}
		if tr.At < 0 || tr.At > sc.Duration {
			return fmt.Errorf("trigger %d: at %v outside the run", i, tr.At)
		}
		if joinAt := sc.JoinAt(int(tr.Node - sc.Nodes.BaseAddress)); joinAt > 0 && tr.At <= joinAt {
			return fmt.Errorf("trigger %d: at %v, before node %04x joins at %v", i, tr.At, tr.Node, joinAt)
		}
	}
	return nil
}
