package drive

import (
	"math"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	cmd := Command{Kill: true, Duty: [3]float64{0.25, -0.5, 0.125}}

	var dec Decoder
	dec.Feed(EncodeCommand(cmd))

	topic, payload, ok := dec.Next()
	if !ok {
		t.Fatal("expected a frame")
	}
	if topic != TopicCommand {
		t.Fatalf("expected topic %d, got %d", TopicCommand, topic)
	}
	if len(payload) != commandPayloadLen {
		t.Fatalf("expected %d payload bytes, got %d", commandPayloadLen, len(payload))
	}
	if getFloat32(payload) != 1 {
		t.Fatal("kill flag not set in payload")
	}
	for i, want := range cmd.Duty {
		if got := getFloat32(payload[4+4*i:]); got != want {
			t.Fatalf("duty %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	// Values chosen to be exactly representable in the float32 wire format.
	st := SensorState{Roll: 0.5, Pitch: -0.125, DPsi: [3]float64{1.5, -2.25, 3}}

	var dec Decoder
	dec.Feed(EncodeState(st))

	topic, payload, ok := dec.Next()
	if !ok || topic != TopicState {
		t.Fatalf("expected a state frame, got topic=%d ok=%v", topic, ok)
	}
	got, err := DecodeState(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Values survive the float32 wire format exactly for these inputs.
	if got != st {
		t.Fatalf("expected %+v, got %+v", st, got)
	}
}

func TestDecoderResyncAfterGarbage(t *testing.T) {
	st := SensorState{Roll: 0.1}
	// Garbage that includes a stray sync byte heading a bogus short frame.
	stream := append([]byte{0x00, 0xFF, syncByte, 0x02, 0x01}, EncodeState(st)...)

	var dec Decoder
	dec.Feed(stream)

	topic, payload, ok := dec.Next()
	if !ok || topic != TopicState {
		t.Fatalf("decoder did not resync past garbage: topic=%d ok=%v", topic, ok)
	}
	got, err := DecodeState(payload)
	if err != nil || math.Abs(got.Roll-0.1) > 1e-6 {
		t.Fatalf("bad frame after resync: %+v, %v", got, err)
	}
}

func TestDecoderDropsCorruptFrame(t *testing.T) {
	good := EncodeState(SensorState{Pitch: 0.3})
	bad := EncodeState(SensorState{Pitch: 9})
	bad[5] ^= 0xFF // corrupt a payload byte, checksum now mismatches

	var dec Decoder
	dec.Feed(append(bad, good...))

	topic, payload, ok := dec.Next()
	if !ok || topic != TopicState {
		t.Fatal("expected the good frame after the corrupt one")
	}
	got, err := DecodeState(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(got.Pitch-0.3) > 1e-6 {
		t.Fatalf("decoder delivered the corrupt frame: %+v", got)
	}
}

func TestDecoderPartialFeeds(t *testing.T) {
	frame := EncodeState(SensorState{Roll: -0.04, DPsi: [3]float64{0.5, 0.5, 0.5}})

	var dec Decoder
	for _, b := range frame[:len(frame)-1] {
		dec.Feed([]byte{b})
		if _, _, ok := dec.Next(); ok {
			t.Fatal("frame complete before all bytes arrived")
		}
	}
	dec.Feed(frame[len(frame)-1:])
	if _, _, ok := dec.Next(); !ok {
		t.Fatal("frame not delivered after final byte")
	}
}

func TestDecodeStateLength(t *testing.T) {
	if _, err := DecodeState(make([]byte, 3)); err == nil {
		t.Fatal("expected error for short payload")
	}
}
