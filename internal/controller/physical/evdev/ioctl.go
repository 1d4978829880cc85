package evdev

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"
)

// evdev ioctl requests, precomputed from linux/input.h.
const (
	eviocGRAB  = 0x40044590 // _IOW('E', 0x90, int)
	eviocGID   = 0x80084502 // _IOR('E', 0x02, struct input_id)
	eviocGNAME = 0x81004506 // _IOC(_IOC_READ, 'E', 0x06, 256)
	eviocGABS  = 0x80184540 // _IOR('E', 0x40 + abs, struct input_absinfo)
	eviocSFF   = 0x40304580 // _IOW('E', 0x80, struct ff_effect)
)

func ioctl(fd int, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

type inputDeviceID struct {
	bustype uint16
	vendor  uint16
	product uint16
	version uint16
}

func inputID(fd int) (inputDeviceID, error) {
	var id inputDeviceID
	err := ioctl(fd, eviocGID, uintptr(unsafe.Pointer(&id)))
	return id, err
}

func inputName(fd int) (string, error) {
	var buf [256]byte
	if err := ioctl(fd, eviocGNAME, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf[:], 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return string(buf[:]), nil
}

type inputAbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func absInfo(fd int, abs uint16) (inputAbsInfo, error) {
	var info inputAbsInfo
	err := ioctl(fd, eviocGABS+uintptr(abs), uintptr(unsafe.Pointer(&info)))
	return info, err
}

// ffEffect mirrors struct ff_effect for FF_RUMBLE on 64-bit. The effect
// union starts at offset 16 and pads the struct out to 48 bytes; only the
// rumble member is spelled out.
type ffEffect struct {
	typ             uint16
	id              int16
	direction       uint16
	triggerButton   uint16
	triggerInterval uint16
	replayLength    uint16
	replayDelay     uint16
	_               [2]byte
	strongMagnitude uint16
	weakMagnitude   uint16
	_               [28]byte
}

// uploadEffect registers or replaces a force feedback effect. The kernel
// assigns an id when eff.id is -1 and writes it back.
func uploadEffect(fd int, eff *ffEffect) error {
	return ioctl(fd, eviocSFF, uintptr(unsafe.Pointer(eff)))
}
