package input

import (
	"encoding/binary"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types from linux/input-event-codes.h
const (
	evSyn uint16 = 0x00
	evKey uint16 = 0x01
	evRel uint16 = 0x02
	evAbs uint16 = 0x03
)

// struct input_event is a native struct timeval (two longs) followed by
// type, code (2 bytes each) and value (4 bytes): 24 bytes on 64-bit
// kernels, 16 on 32-bit ones.
var (
	timevalSize = int(unsafe.Sizeof(unix.Timeval{}))
	eventSize   = timevalSize + 8
)

// Event is one decoded evdev record.
type Event struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

func decodeEvent(buf []byte) Event {
	half := timevalSize / 2
	sec := readLong(buf[0:half])
	usec := readLong(buf[half:timevalSize])
	tail := buf[timevalSize:]

	return Event{
		Time:  time.Unix(sec, usec*int64(time.Microsecond)),
		Type:  binary.NativeEndian.Uint16(tail[0:2]),
		Code:  binary.NativeEndian.Uint16(tail[2:4]),
		Value: int32(binary.NativeEndian.Uint32(tail[4:8])),
	}
}

func readLong(b []byte) int64 {
	if len(b) == 8 {
		return int64(binary.NativeEndian.Uint64(b))
	}
	return int64(int32(binary.NativeEndian.Uint32(b)))
}

// qualifies reports whether the event counts as user activity: key presses
// (keypads, touch buttons) and absolute axis motion (touchscreens, touchpads).
func (e Event) qualifies() bool {
	return e.Type == evKey || e.Type == evAbs
}
