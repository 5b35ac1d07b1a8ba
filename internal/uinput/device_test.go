package uinput

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeEvents_AppendsSynReport(t *testing.T) {
	b := EncodeEvents([]Event{
		{Type: EvKey, Code: 0x130, Value: 1},
		{Type: EvAbs, Code: 0x11, Value: -1},
	})

	evSize := binary.Size(inputEvent{})
	if evSize != 24 {
		t.Fatalf("expected 24-byte input_event, got %d", evSize)
	}
	if len(b) != 3*evSize {
		t.Fatalf("expected %d bytes, got %d", 3*evSize, len(b))
	}

	r := bytes.NewReader(b)
	var got []inputEvent
	for r.Len() > 0 {
		var ev inputEvent
		if err := binary.Read(r, binary.NativeEndian, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, ev)
	}

	if got[0].Type != EvKey || got[0].Code != 0x130 || got[0].Value != 1 {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[1].Type != EvAbs || got[1].Code != 0x11 || got[1].Value != -1 {
		t.Errorf("unexpected second event: %+v", got[1])
	}
	if got[2].Type != EvSyn || got[2].Code != SynReport || got[2].Value != 0 {
		t.Errorf("expected trailing SYN_REPORT, got %+v", got[2])
	}
}

func TestNewUserDev_FillsAbsRanges(t *testing.T) {
	ud := newUserDev(Descriptor{
		Name:    "CEC",
		BusType: BusBluetooth,
		Vendor:  0x045e,
		Product: 0x02e0,
		Version: 0x0903,
		Abs: []AbsAxis{
			{Code: 0x10, Min: -1, Max: 1},
			{Code: 0x11, Min: -1, Max: 1},
		},
	})

	if string(bytes.TrimRight(ud.Name[:], "\x00")) != "CEC" {
		t.Errorf("unexpected name %q", ud.Name[:])
	}
	if ud.ID.Bustype != BusBluetooth || ud.ID.Vendor != 0x045e || ud.ID.Product != 0x02e0 || ud.ID.Version != 0x0903 {
		t.Errorf("unexpected id %+v", ud.ID)
	}
	for _, code := range []int{0x10, 0x11} {
		if ud.Absmin[code] != -1 || ud.Absmax[code] != 1 {
			t.Errorf("abs %#x: expected -1..1, got %d..%d", code, ud.Absmin[code], ud.Absmax[code])
		}
	}
	if binary.Size(ud) != 80+8+4+4*64*4 {
		t.Errorf("unexpected uinput_user_dev size %d", binary.Size(ud))
	}
}
