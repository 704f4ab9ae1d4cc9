package mqtt

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"trickle-sim/internal/mesh"
)

// MqttCommandPayload is the JSON operator command read from <prefix>/command.
type MqttCommandPayload struct {
	NodeAddr uint16 `json:"node_addr"`
	Event    string `json:"event"` // press | set
	Value    int32  `json:"value,omitempty"`
}

// StatusPayload is published msgpack-encoded to <prefix>/<addr>/status.
type StatusPayload struct {
	Addr       uint16 `msgpack:"addr"`
	Value      int32  `msgpack:"value"`
	IntervalMs int64  `msgpack:"interval_ms"`
	LED        bool   `msgpack:"led"`
	Ts         int64  `msgpack:"ts"` // unix millis
}

func NewStatusPayload(st mesh.NodeStatus, at time.Time) StatusPayload {
	return StatusPayload{
		Addr:       st.Addr,
		Value:      st.Value,
		IntervalMs: st.Interval.Milliseconds(),
		LED:        st.LED,
		Ts:         at.UnixMilli(),
	}
}

func (p StatusPayload) Encode() ([]byte, error) {
	return msgpack.Marshal(&p)
}

func DecodeStatus(b []byte) (StatusPayload, error) {
	var p StatusPayload
	err := msgpack.Unmarshal(b, &p)
	return p, err
}
