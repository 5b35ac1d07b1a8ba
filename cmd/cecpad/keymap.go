package main

import (
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// Key Translator
// ============================================================================
// A Keymap is a fixed table from CEC remote codes to synthetic gamepad events.
// It is built once at startup (defaults + config overrides) and never mutated
// afterwards, so Translate is safe to call from any goroutine.
// ============================================================================

// Button is a Linux EV_KEY code (gamepad BTN_* or keyboard KEY_*).
type Button uint16

// Axis is a Linux EV_ABS code.
type Axis uint16

const (
	KeyStop         Button = 128
	KeyMenu         Button = 139
	KeyBack         Button = 158
	KeyForward      Button = 159
	KeyEjectCD      Button = 161
	KeyPlayPause    Button = 164
	KeyRecord       Button = 167
	KeyRewind       Button = 168
	KeyFastForward  Button = 208
	KeyContextMenu  Button = 0x1b6
	KeyStopRecord   Button = 0x271
	KeyPauseRecord  Button = 0x272
	BtnSouth        Button = 0x130
	BtnEast         Button = 0x131
	BtnC            Button = 0x132
	BtnNorth        Button = 0x133
	BtnWest         Button = 0x134
	BtnZ            Button = 0x135
	BtnTL           Button = 0x136
	BtnTR           Button = 0x137
	BtnTL2          Button = 0x138
	BtnTR2          Button = 0x139
	BtnSelect       Button = 0x13a
	BtnStart        Button = 0x13b
	BtnMode         Button = 0x13c
	KeyMainMenu            = KeyMenu
	KeyAuxMenu             = KeyContextMenu
	AxisHat0X       Axis   = 0x10
	AxisHat0Y       Axis   = 0x11
	hatMin, hatMax  int32  = -1, 1
)

var buttonNames = map[Button]string{
	KeyStop:        "KEY_STOP",
	KeyMenu:        "KEY_MENU",
	KeyBack:        "KEY_BACK",
	KeyForward:     "KEY_FORWARD",
	KeyEjectCD:     "KEY_EJECTCD",
	KeyPlayPause:   "KEY_PLAYPAUSE",
	KeyRecord:      "KEY_RECORD",
	KeyRewind:      "KEY_REWIND",
	KeyFastForward: "KEY_FASTFORWARD",
	KeyContextMenu: "KEY_CONTEXT_MENU",
	KeyStopRecord:  "KEY_STOP_RECORD",
	KeyPauseRecord: "KEY_PAUSE_RECORD",
	BtnSouth:       "BTN_SOUTH",
	BtnEast:        "BTN_EAST",
	BtnC:           "BTN_C",
	BtnNorth:       "BTN_NORTH",
	BtnWest:        "BTN_WEST",
	BtnZ:           "BTN_Z",
	BtnTL:          "BTN_TL",
	BtnTR:          "BTN_TR",
	BtnTL2:         "BTN_TL2",
	BtnTR2:         "BTN_TR2",
	BtnSelect:      "BTN_SELECT",
	BtnStart:       "BTN_START",
	BtnMode:        "BTN_MODE",
}

// Common aliases accepted in config files.
var buttonAliases = map[string]Button{
	"BTN_A":     BtnSouth,
	"BTN_B":     BtnEast,
	"BTN_X":     BtnNorth,
	"BTN_Y":     BtnWest,
	"MAIN_MENU": KeyMainMenu,
	"AUX_MENU":  KeyAuxMenu,
}

func (b Button) String() string {
	if n, ok := buttonNames[b]; ok {
		return n
	}
	return fmt.Sprintf("KEY(%#x)", uint16(b))
}

func (a Axis) String() string {
	switch a {
	case AxisHat0X:
		return "ABS_HAT0X"
	case AxisHat0Y:
		return "ABS_HAT0Y"
	default:
		return fmt.Sprintf("ABS(%#x)", uint16(a))
	}
}

// SyntheticKind discriminates SyntheticEvent.
type SyntheticKind uint8

const (
	KindButton SyntheticKind = iota + 1
	KindHat
)

// SyntheticEvent is what a remote code turns into on the virtual pad.
// For KindHat, Position is the extreme (-1 or +1) set while the key is held.
type SyntheticEvent struct {
	Kind     SyntheticKind
	Button   Button
	Axis     Axis
	Position int32
}

func ButtonEvent(b Button) SyntheticEvent {
	return SyntheticEvent{Kind: KindButton, Button: b}
}

func HatEvent(a Axis, pos int32) SyntheticEvent {
	return SyntheticEvent{Kind: KindHat, Axis: a, Position: pos}
}

func (e SyntheticEvent) String() string {
	switch e.Kind {
	case KindButton:
		return e.Button.String()
	case KindHat:
		return fmt.Sprintf("%s=%d", e.Axis, e.Position)
	default:
		return "none"
	}
}

// KeyBinding is one row of the translation table.
type KeyBinding struct {
	Code  RemoteCode
	Event SyntheticEvent
}

// DefaultBindings returns the built-in remote layout.
func DefaultBindings() []KeyBinding {
	return []KeyBinding{
		{RemoteSelect, ButtonEvent(BtnSouth)},
		{RemoteUp, HatEvent(AxisHat0Y, hatMin)},
		{RemoteDown, HatEvent(AxisHat0Y, hatMax)},
		{RemoteLeft, HatEvent(AxisHat0X, hatMin)},
		{RemoteRight, HatEvent(AxisHat0X, hatMax)},
		{RemoteRootMenu, ButtonEvent(KeyMainMenu)},
		{RemoteSetupMenu, ButtonEvent(KeyMainMenu)},
		{RemoteContentsMenu, ButtonEvent(KeyMainMenu)},
		{RemoteFavoriteMenu, ButtonEvent(KeyAuxMenu)},
		{RemoteExit, ButtonEvent(BtnEast)},
		{RemoteTopMenu, ButtonEvent(KeyMainMenu)},
		{RemoteEnter, ButtonEvent(BtnStart)},
		{RemotePreviousChannel, ButtonEvent(KeyMainMenu)},
		{RemoteDisplayInformation, ButtonEvent(BtnStart)},
		{RemotePlay, ButtonEvent(KeyPlayPause)},
		{RemoteStop, ButtonEvent(KeyStop)},
		{RemotePause, ButtonEvent(KeyPlayPause)},
		{RemoteRecord, ButtonEvent(KeyRecord)},
		{RemoteRewind, ButtonEvent(KeyRewind)},
		{RemoteFastForward, ButtonEvent(KeyFastForward)},
		{RemoteEject, ButtonEvent(KeyEjectCD)},
		{RemoteForward, ButtonEvent(KeyForward)},
		{RemoteBackward, ButtonEvent(KeyBack)},
		{RemoteStopRecord, ButtonEvent(KeyStopRecord)},
		{RemotePauseRecord, ButtonEvent(KeyPauseRecord)},
		{RemoteVideoOnDemand, ButtonEvent(KeyMainMenu)},
		{RemoteElectronicProgramGuide, ButtonEvent(KeyMainMenu)},
		{RemoteSelectMediaFunction, ButtonEvent(BtnStart)},
		{RemoteF1Blue, ButtonEvent(BtnC)},
		{RemoteF2Red, ButtonEvent(BtnSouth)},
		{RemoteF3Green, ButtonEvent(BtnEast)},
		{RemoteF4Yellow, ButtonEvent(BtnNorth)},
		{RemoteAnReturn, ButtonEvent(KeyAuxMenu)},
		{RemoteAnChannelsList, ButtonEvent(KeyAuxMenu)},
	}
}

// Keymap is an immutable remote-code lookup table.
type Keymap struct {
	bindings []KeyBinding
	index    map[RemoteCode]SyntheticEvent
}

// NewKeymap builds a Keymap. Later bindings for the same code win.
func NewKeymap(bindings []KeyBinding) *Keymap {
	km := &Keymap{index: make(map[RemoteCode]SyntheticEvent, len(bindings))}
	for _, b := range bindings {
		if _, dup := km.index[b.Code]; dup {
			for i := range km.bindings {
				if km.bindings[i].Code == b.Code {
					km.bindings[i] = b
				}
			}
		} else {
			km.bindings = append(km.bindings, b)
		}
		km.index[b.Code] = b.Event
	}
	return km
}

// DefaultKeymap returns the built-in table.
func DefaultKeymap() *Keymap { return NewKeymap(DefaultBindings()) }

// Translate maps a remote code. ok is false for unmapped codes.
func (k *Keymap) Translate(code RemoteCode) (SyntheticEvent, bool) {
	ev, ok := k.index[code]
	return ev, ok
}

// Bindings returns a copy of the table in insertion order.
func (k *Keymap) Bindings() []KeyBinding {
	out := make([]KeyBinding, len(k.bindings))
	copy(out, k.bindings)
	return out
}

// Len is the number of mapped codes.
func (k *Keymap) Len() int { return len(k.bindings) }

// WithOverrides returns a new Keymap with config overrides applied on top of k.
// Keys are CEC key names; values are target names accepted by ParseTarget.
func (k *Keymap) WithOverrides(overrides map[string]string) (*Keymap, error) {
	if len(overrides) == 0 {
		return k, nil
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	unmap := make(map[RemoteCode]bool)
	bindings := k.Bindings()
	for _, name := range names {
		code, err := ParseRemoteCode(name)
		if err != nil {
			return nil, fmt.Errorf("keymap.overrides: %w", err)
		}
		ev, none, err := ParseTarget(overrides[name])
		if err != nil {
			return nil, fmt.Errorf("keymap.overrides[%s]: %w", name, err)
		}
		if none {
			unmap[code] = true
			continue
		}
		delete(unmap, code)
		bindings = append(bindings, KeyBinding{Code: code, Event: ev})
	}

	kept := bindings[:0]
	for _, b := range bindings {
		if !unmap[b.Code] {
			kept = append(kept, b)
		}
	}
	return NewKeymap(kept), nil
}

// ParseTarget parses an override target: a BTN_*/KEY_* name, HAT0X-/HAT0X+/
// HAT0Y-/HAT0Y+, or "none". none is true for "none".
func ParseTarget(s string) (ev SyntheticEvent, none bool, err error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	switch t {
	case "NONE", "":
		return SyntheticEvent{}, true, nil
	case "HAT0X-":
		return HatEvent(AxisHat0X, hatMin), false, nil
	case "HAT0X+":
		return HatEvent(AxisHat0X, hatMax), false, nil
	case "HAT0Y-":
		return HatEvent(AxisHat0Y, hatMin), false, nil
	case "HAT0Y+":
		return HatEvent(AxisHat0Y, hatMax), false, nil
	}
	if b, ok := buttonAliases[t]; ok {
		return ButtonEvent(b), false, nil
	}
	for b, name := range buttonNames {
		if name == t {
			return ButtonEvent(b), false, nil
		}
	}
	return SyntheticEvent{}, false, fmt.Errorf("unknown target %q", s)
}

// gamepadButtons are always advertised so the device classifies as a gamepad
// whatever the overrides say.
var gamepadButtons = []Button{
	BtnSouth, BtnEast, BtnC, BtnNorth, BtnWest, BtnZ,
	BtnTL, BtnTR, BtnTL2, BtnTR2, BtnSelect, BtnStart,
}

// Buttons is the sorted EV_KEY capability set: the standard gamepad buttons,
// everything the table maps to, and KEY_PLAYPAUSE for the bus Play command.
func (k *Keymap) Buttons() []Button {
	set := map[Button]struct{}{KeyPlayPause: {}}
	for _, b := range gamepadButtons {
		set[b] = struct{}{}
	}
	for _, b := range k.bindings {
		if b.Event.Kind == KindButton {
			set[b.Event.Button] = struct{}{}
		}
	}
	out := make([]Button, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
