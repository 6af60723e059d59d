package drive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wire framing for the motor-controller board. A frame is
//
//	[0xA5][topic][len][payload ...][sum]
//
// where sum is the XOR of topic, len and every payload byte. Payloads
// are little-endian float32s, matching the board firmware's packed
// structs.
const (
	syncByte = 0xA5

	// Topic IDs match the board firmware's serializer registry.
	TopicCommand = 101
	TopicState   = 121

	statePayloadLen   = 20 // roll, pitch, dpsi1..3
	commandPayloadLen = 16 // kill, duty1..3
)

// SensorState is one sample from the balance board: body tilt angles
// from the onboard filter (radians) and the three wheel angular
// velocities (rad/s).
type SensorState struct {
	Roll  float64
	Pitch float64
	DPsi  [3]float64
}

// Command is one actuation frame: three motor duty cycles and the kill
// flag. The kill flag is only ever set on the final shutdown command.
type Command struct {
	Kill bool
	Duty [3]float64
}

func checksum(topic, length byte, payload []byte) byte {
	sum := topic ^ length
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

func appendFrame(dst []byte, topic byte, payload []byte) []byte {
	dst = append(dst, syncByte, topic, byte(len(payload)))
	dst = append(dst, payload...)
	return append(dst, checksum(topic, byte(len(payload)), payload))
}

func putFloat32(dst []byte, v float64) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
}

func getFloat32(src []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
}

// EncodeCommand serializes a command frame. The kill flag travels as a
// float like in the firmware's command struct.
func EncodeCommand(c Command) []byte {
	payload := make([]byte, commandPayloadLen)
	if c.Kill {
		putFloat32(payload[0:], 1)
	}
	for i, d := range c.Duty {
		putFloat32(payload[4+4*i:], d)
	}
	return appendFrame(nil, TopicCommand, payload)
}

// EncodeState serializes a state frame the way the board does. Used by
// the board simulator and by tests.
func EncodeState(st SensorState) []byte {
	payload := make([]byte, statePayloadLen)
	putFloat32(payload[0:], st.Roll)
	putFloat32(payload[4:], st.Pitch)
	for i, v := range st.DPsi {
		putFloat32(payload[8+4*i:], v)
	}
	return appendFrame(nil, TopicState, payload)
}

// DecodeState parses a state-topic payload.
func DecodeState(payload []byte) (SensorState, error) {
	if len(payload) != statePayloadLen {
		return SensorState{}, fmt.Errorf("state payload: expected %d bytes, got %d", statePayloadLen, len(payload))
	}
	var st SensorState
	st.Roll = getFloat32(payload[0:])
	st.Pitch = getFloat32(payload[4:])
	for i := range st.DPsi {
		st.DPsi[i] = getFloat32(payload[8+4*i:])
	}
	return st, nil
}

// Decoder incrementally extracts frames from a byte stream, discarding
// garbage until the next sync byte. Frames with a bad checksum are
// dropped and scanning resumes one byte past their sync marker.
type Decoder struct {
	buf []byte
}

// Feed appends raw bytes from the serial port.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next well-formed frame, or ok=false when more input
// is needed. The returned payload is a copy.
func (d *Decoder) Next() (topic byte, payload []byte, ok bool) {
	for {
		i := bytes.IndexByte(d.buf, syncByte)
		if i < 0 {
			d.buf = d.buf[:0]
			return 0, nil, false
		}
		d.buf = d.buf[i:]

		if len(d.buf) < 4 {
			return 0, nil, false
		}
		n := int(d.buf[2])
		if len(d.buf) < 4+n {
			return 0, nil, false
		}

		if checksum(d.buf[1], d.buf[2], d.buf[3:3+n]) != d.buf[3+n] {
			d.buf = d.buf[1:]
			continue
		}

		topic = d.buf[1]
		payload = append([]byte(nil), d.buf[3:3+n]...)
		d.buf = d.buf[4+n:]
		return topic, payload, true
	}
}
