package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "sc.yaml", `
duration: 2m
seed: 7
virtual: true
nodes:
  count: 4
  base_address: 0x2000
  placement: grid
trickle:
  interval_min: 500ms
  redundancy: 0
admission:
  multi_hop: false
triggers:
  - at: 10s
    node: 0x2001
    press: true
  - at: 20s
    node: 0x2003
    value: 42
`)
	sc, err := LoadScenario(p)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Duration != 2*time.Minute || !sc.Virtual || sc.Nodes.BaseAddress != 0x2000 || sc.Nodes.Placement != "grid" {
		t.Fatalf("scenario = %+v", sc)
	}
	if *sc.Trickle.Redundancy != 0 || *sc.Trickle.MaxDoublings != DefaultMaxDoublings {
		t.Fatalf("explicit zero redundancy or default doublings lost")
	}
	if *sc.Admission.MultiHop {
		t.Fatalf("multi_hop: false ignored")
	}
	if *sc.Admission.HopSize != DefaultHopSize || sc.Step != time.Millisecond {
		t.Fatalf("hop_size %d, virtual_step %v", *sc.Admission.HopSize, sc.Step)
	}
	if len(sc.Triggers) != 2 || !sc.Triggers[0].Press || *sc.Triggers[1].Value != 42 {
		t.Fatalf("triggers = %+v", sc.Triggers)
	}
	cfg, err := sc.TrickleConfig()
	if err != nil || cfg.IntervalMin != 500*time.Millisecond || cfg.Redundancy != 0 {
		t.Fatalf("trickle config %+v, err %v", cfg, err)
	}
}

func TestLoadYAMLExplicitZeroHopSize(t *testing.T) {
	p := writeFile(t, "sc.yaml", `
admission:
  multi_hop: true
  hop_size: 0
virtual_step: 250us
`)
	sc, err := LoadScenario(p)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if !*sc.Admission.MultiHop || *sc.Admission.HopSize != 0 {
		t.Fatalf("admission multi_hop=%v hop_size=%d, want true and 0", *sc.Admission.MultiHop, *sc.Admission.HopSize)
	}
	if sc.Step != 250*time.Microsecond {
		t.Fatalf("virtual_step %v", sc.Step)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "sc.json", `{"duration": 60000000000, "nodes": {"count": 2}, "trickle": {"ordering": "serial"}}`)
	sc, err := LoadScenario(p)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Duration != time.Minute || sc.Nodes.Count != 2 || sc.Trickle.Ordering != "serial" {
		t.Fatalf("scenario = %+v", sc)
	}
}

func TestDefaultsMatchFirmware(t *testing.T) {
	sc := &Scenario{}
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg, _ := sc.TrickleConfig()
	if cfg.IntervalMin != 10*time.Second || cfg.MaxDoublings != 7 || cfg.Redundancy != 4 {
		t.Fatalf("trickle defaults %+v", cfg)
	}
	if sc.Addr(0) != 0x150c || *sc.Admission.HopSize != 1 || !*sc.Admission.MultiHop {
		t.Fatalf("node defaults %+v %+v", sc.Nodes, sc.Admission)
	}
}

func TestTriggerAfterJoin(t *testing.T) {
	sc := &Scenario{Nodes: NodeCfg{JoinDelay: time.Second}}
	sc.ApplyDefaults()
	sc.Triggers = []Trigger{
		{Node: 0x150c, At: 0, Press: true},
		{Node: 0x150e, At: 2001 * time.Millisecond, Press: true},
	}
	if err := sc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	v := int32(3)
	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"placement", func(sc *Scenario) { sc.Nodes.Placement = "ring" }, "placement"},
		{"entropy", func(sc *Scenario) { sc.Entropy = "dice" }, "entropy"},
		{"ordering", func(sc *Scenario) { sc.Trickle.Ordering = "lexical" }, "ordering"},
		{"interval", func(sc *Scenario) { sc.Trickle.IntervalMin = 1 }, "interval_min"},
		{"loss", func(sc *Scenario) { sc.Radio.Loss = 1.5 }, "loss"},
		{"broadcast", func(sc *Scenario) { sc.Nodes.BaseAddress = 0xfffe }, "broadcast"},
		{"trigger node", func(sc *Scenario) { sc.Triggers = []Trigger{{Node: 0x1, Press: true}} }, "no node"},
		{"trigger both", func(sc *Scenario) { sc.Triggers = []Trigger{{Node: 0x150c, Press: true, Value: &v}} }, "exactly one"},
		{"trigger late", func(sc *Scenario) { sc.Triggers = []Trigger{{Node: 0x150c, At: time.Hour, Press: true}} }, "outside"},
		{"trigger before join", func(sc *Scenario) {
			sc.Nodes.JoinDelay = time.Second
			sc.Triggers = []Trigger{{Node: 0x150e, At: 1500 * time.Millisecond, Press: true}}
		}, "before node 150e joins"},
		{"trigger as node joins", func(sc *Scenario) {
			sc.Nodes.JoinDelay = time.Second
			sc.Triggers = []Trigger{{Node: 0x150d, At: time.Second, Press: true}}
		}, "joins"},
		{"step", func(sc *Scenario) { sc.Step = -1 }, "virtual_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &Scenario{}
			sc.ApplyDefaults()
			tt.mutate(sc)
			err := sc.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
