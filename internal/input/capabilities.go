package input

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Codes from linux/input-event-codes.h used for device matching.
const (
	absX           = 0x00
	absY           = 0x01
	absMTPositionX = 0x35
	absMTPositionY = 0x36
	btnTouch       = 0x14a

	evMax  = 0x1f
	keyMax = 0x2ff
	absMax = 0x3f
)

// ioctl request layout from asm-generic/ioctl.h
const (
	iocRead      = 2
	iocDirShift  = 30
	iocSizeShift = 16
	iocTypeShift = 8
)

// Kernel bitmaps are arrays of unsigned long in native byte order.
var longBits = int(unsafe.Sizeof(uint(0))) * 8

func eviocgbit(ev uint16, size int) uintptr {
	return uintptr(iocRead)<<iocDirShift | uintptr(size)<<iocSizeShift | uintptr('E')<<iocTypeShift | uintptr(0x20+ev)
}

type bitmap []byte

func bitmapSize(maxBit int) int {
	return (maxBit/longBits + 1) * longBits / 8
}

func (b bitmap) has(bit int) bool {
	longBytes := longBits / 8
	start := bit / longBits * longBytes
	if bit < 0 || start+longBytes > len(b) {
		return false
	}

	var word uint64
	if longBytes == 8 {
		word = binary.NativeEndian.Uint64(b[start:])
	} else {
		word = uint64(binary.NativeEndian.Uint32(b[start:]))
	}
	return word&(1<<uint(bit%longBits)) != 0
}

// capabilities holds the event types, keys and absolute axes a device reports.
type capabilities struct {
	ev  bitmap
	key bitmap
	abs bitmap
}

// class returns the kind of user-facing device c describes, or an empty
// string when the device is not one that boosting reacts to. Sensors such as
// accelerometers report absolute axes too but match none of the classes.
func (c capabilities) class() string {
	switch {
	case c.ev.has(int(evAbs)) && c.abs.has(absMTPositionX) && c.abs.has(absMTPositionY):
		return "touchscreen"
	case c.key.has(btnTouch) && c.abs.has(absX) && c.abs.has(absY):
		return "touchpad"
	case c.ev.has(int(evKey)):
		return "keypad"
	default:
		return ""
	}
}

func readCapabilities(file *os.File) (capabilities, error) {
	ev, err := readBitmap(file, 0, evMax)
	if err != nil {
		return capabilities{}, err
	}
	key, err := readBitmap(file, evKey, keyMax)
	if err != nil {
		return capabilities{}, err
	}
	abs, err := readBitmap(file, evAbs, absMax)
	if err != nil {
		return capabilities{}, err
	}

	return capabilities{ev: ev, key: key, abs: abs}, nil
}

// readBitmap issues EVIOCGBIT. The descriptor is reached through
// SyscallConn so the file stays in non-blocking mode and Close can still
// interrupt a pending read.
func readBitmap(file *os.File, ev uint16, maxBit int) (bitmap, error) {
	buf := make(bitmap, bitmapSize(maxBit))

	conn, err := file.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to access input device %s: %w", file.Name(), err)
	}

	var errno unix.Errno
	if err := conn.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, eviocgbit(ev, len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	}); err != nil {
		return nil, fmt.Errorf("failed to access input device %s: %w", file.Name(), err)
	}
	if errno != 0 {
		return nil, fmt.Errorf("failed to query capabilities of input device %s (type %d): %w", file.Name(), ev, errno)
	}

	return buf, nil
}
