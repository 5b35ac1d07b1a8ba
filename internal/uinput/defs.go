package uinput

// DefaultPath is the usual location of the uinput character device.
const DefaultPath = "/dev/uinput"

// Request numbers from <linux/uinput.h>.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetAbsBit = 0x40045567
	uiSetMscBit = 0x40045568

	// UI_GET_SYSNAME(len) with len = sysnameLen.
	uiGetSysname = 0x8040552c
	sysnameLen   = 64
)

const (
	maxNameSize = 80
	absSize     = 64
)

// Event types and codes from <linux/input-event-codes.h>.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
	EvMsc = 0x04

	SynReport = 0
	MscScan   = 0x04
)

// Bus types from <linux/input.h>.
const (
	BusUSB       = 0x03
	BusBluetooth = 0x05
	BusVirtual   = 0x06
)

// AbsAxis describes one absolute axis capability.
type AbsAxis struct {
	Code uint16
	Min  int32
	Max  int32
	Fuzz int32
	Flat int32
}

// Descriptor is everything the kernel needs to know before UI_DEV_CREATE.
type Descriptor struct {
	Name    string
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16

	Keys []uint16
	Abs  []AbsAxis
	Misc []uint16
}

// Event is one input event. The kernel stamps the time.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// legacy struct uinput_user_dev, written before UI_DEV_CREATE
type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absSize]int32
	Absmin     [absSize]int32
	Absfuzz    [absSize]int32
	Absflat    [absSize]int32
}

// inputEvent is struct input_event on 64-bit targets:
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

func newUserDev(desc Descriptor) userDev {
	var ud userDev
	copy(ud.Name[:], desc.Name)
	ud.ID = inputID{
		Bustype: desc.BusType,
		Vendor:  desc.Vendor,
		Product: desc.Product,
		Version: desc.Version,
	}
	for _, a := range desc.Abs {
		if int(a.Code) >= absSize {
			continue
		}
		ud.Absmin[a.Code] = a.Min
		ud.Absmax[a.Code] = a.Max
		ud.Absfuzz[a.Code] = a.Fuzz
		ud.Absflat[a.Code] = a.Flat
	}
	return ud
}
