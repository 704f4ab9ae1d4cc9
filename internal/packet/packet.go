package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
)

// Packet Types
const (
	PKT_TRICKLE uint8 = 0x01 // carries one Trickle value
)

// AddrMode follows the IEEE 802.15.4 addressing mode field.
type AddrMode uint8

const (
	ADDR_NONE  AddrMode = 0x0
	ADDR_SHORT AddrMode = 0x2
	ADDR_LONG  AddrMode = 0x3
)

const (
	MaxPacketSize = 127 // bytes – 802.15.4 PHY payload

	BROADCAST_ADDR uint16 = 0xFFFF // everyone hears

	ValueSize = 4 // one value-unit on the wire

	baseHeaderSize = 6
)

var (
	ErrShortPayload = errors.New("payload shorter than one value")
	ErrBadAddrMode  = errors.New("unrecognised address mode")
)

// Address is a source or destination address in one of the three modes.
type Address struct {
	Mode  AddrMode
	Short uint16
	Long  [8]byte
}

func ShortAddress(a uint16) Address { return Address{Mode: ADDR_SHORT, Short: a} }

func LongAddress(a [8]byte) Address { return Address{Mode: ADDR_LONG, Long: a} }

// BroadcastShort is the short broadcast address 0xFFFF.
func BroadcastShort() Address { return ShortAddress(BROADCAST_ADDR) }

// BroadcastLong is the all-ones long address.
func BroadcastLong() Address {
	var a [8]byte
	for i := range a {
		a[i] = 0xFF
	}
	return LongAddress(a)
}

// IsBroadcast reports whether the address reaches every node.
func (a Address) IsBroadcast() bool {
	switch a.Mode {
	case ADDR_SHORT:
		return a.Short == BROADCAST_ADDR
	case ADDR_LONG:
		for _, b := range a.Long {
			if b != 0xFF {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (a Address) String() string {
	switch a.Mode {
	case ADDR_SHORT:
		return fmt.Sprintf("%04x", a.Short)
	case ADDR_LONG:
		return fmt.Sprintf("%x", a.Long[:])
	default:
		return "none"
	}
}

func addrSize(m AddrMode) (int, error) {
	switch m {
	case ADDR_NONE:
		return 0, nil
	case ADDR_SHORT:
		return 2, nil
	case ADDR_LONG:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrBadAddrMode, m)
	}
}

func (a Address) put(buf []byte) {
	switch a.Mode {
	case ADDR_SHORT:
		binary.LittleEndian.PutUint16(buf, a.Short)
	case ADDR_LONG:
		copy(buf, a.Long[:])
	}
}

func readAddress(m AddrMode, buf []byte) Address {
	a := Address{Mode: m}
	switch m {
	case ADDR_SHORT:
		a.Short = binary.LittleEndian.Uint16(buf)
	case ADDR_LONG:
		copy(a.Long[:], buf)
	}
	return a
}

// Frame is a parsed frame: header fields plus the raw payload.
//
//	type u8 | modes u8 (dst<<4 | src) | packet id u32 | dst | src | payload
type Frame struct {
	PacketType uint8
	PacketID   uint32
	Dest       Address
	Src        Address
	Payload    []byte
}

// Serialise encodes the frame.
func (f *Frame) Serialise() ([]byte, error) {
	dn, err := addrSize(f.Dest.Mode)
	if err != nil {
		return nil, err
	}
	sn, err := addrSize(f.Src.Mode)
	if err != nil {
		return nil, err
	}
	total := baseHeaderSize + dn + sn + len(f.Payload)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("frame too big (%d B)", total)
	}

	buf := make([]byte, total)
	buf[0] = f.PacketType
	buf[1] = byte(f.Dest.Mode)<<4 | byte(f.Src.Mode)
	binary.LittleEndian.PutUint32(buf[2:6], f.PacketID)
	ofs := baseHeaderSize
	f.Dest.put(buf[ofs:])
	ofs += dn
	f.Src.put(buf[ofs:])
	ofs += sn
	copy(buf[ofs:], f.Payload)
	return buf, nil
}

// Deserialise parses buf. A short payload is not an error here, admission
// decides what to do with it.
func (f *Frame) Deserialise(buf []byte) error {
	if len(buf) < baseHeaderSize {
		return fmt.Errorf("buffer too short for header")
	}
	dm, sm := AddrMode(buf[1]>>4), AddrMode(buf[1]&0x0F)
	dn, err := addrSize(dm)
	if err != nil {
		return err
	}
	sn, err := addrSize(sm)
	if err != nil {
		return err
	}
	if len(buf) < baseHeaderSize+dn+sn {
		return fmt.Errorf("buffer too short for addresses: need %d B got %d B", baseHeaderSize+dn+sn, len(buf))
	}

	f.PacketType = buf[0]
	f.PacketID = binary.LittleEndian.Uint32(buf[2:6])
	ofs := baseHeaderSize
	f.Dest = readAddress(dm, buf[ofs:])
	ofs += dn
	f.Src = readAddress(sm, buf[ofs:])
	ofs += sn
	f.Payload = append([]byte(nil), buf[ofs:]...)
	return nil
}

// EncodeValue returns the payload for a Trickle value.
func EncodeValue(v int32) []byte {
	buf := make([]byte, ValueSize)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeValue reads the value from the start of a payload.
func DecodeValue(payload []byte) (int32, error) {
	if len(payload) < ValueSize {
		return 0, ErrShortPayload
	}
	return int32(binary.LittleEndian.Uint32(payload)), nil
}

func createPacketID() uint32 {
	return uint32(rand.Int31())
}

func chooseID(ids ...uint32) uint32 {
	if len(ids) > 0 {
		return ids[0]
	}
	return createPacketID()
}

// CreateTricklePacket builds a broadcast frame carrying v from src.
func CreateTricklePacket(src Address, v int32, packetID ...uint32) ([]byte, uint32, error) {
	pid := chooseID(packetID...)
	f := Frame{
		PacketType: PKT_TRICKLE,
		PacketID:   pid,
		Dest:       BroadcastShort(),
		Src:        src,
		Payload:    EncodeValue(v),
	}
	buf, err := f.Serialise()
	if err != nil {
		return nil, 0, fmt.Errorf("error serialising trickle frame: %w", err)
	}
	return buf, pid, nil
}
