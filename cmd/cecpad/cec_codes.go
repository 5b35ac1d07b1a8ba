package main

import (
	"fmt"
	"strings"
)

// ============================================================================
// CEC identifiers
// ============================================================================
// Values are the on-wire numbers from the HDMI-CEC specification. Only the
// subset this daemon reacts to (or reports in logs) is named.
// ============================================================================

// RemoteCode is a CEC user control code (the operand of <User Control Pressed>).
type RemoteCode uint8

const (
	RemoteSelect                 RemoteCode = 0x00
	RemoteUp                     RemoteCode = 0x01
	RemoteDown                   RemoteCode = 0x02
	RemoteLeft                   RemoteCode = 0x03
	RemoteRight                  RemoteCode = 0x04
	RemoteRightUp                RemoteCode = 0x05
	RemoteRightDown              RemoteCode = 0x06
	RemoteLeftUp                 RemoteCode = 0x07
	RemoteLeftDown               RemoteCode = 0x08
	RemoteRootMenu               RemoteCode = 0x09
	RemoteSetupMenu              RemoteCode = 0x0A
	RemoteContentsMenu           RemoteCode = 0x0B
	RemoteFavoriteMenu           RemoteCode = 0x0C
	RemoteExit                   RemoteCode = 0x0D
	RemoteTopMenu                RemoteCode = 0x10
	RemoteDvdMenu                RemoteCode = 0x11
	RemoteNumber0                RemoteCode = 0x20
	RemoteNumber9                RemoteCode = 0x29
	RemoteDot                    RemoteCode = 0x2A
	RemoteEnter                  RemoteCode = 0x2B
	RemoteClear                  RemoteCode = 0x2C
	RemoteChannelUp              RemoteCode = 0x30
	RemoteChannelDown            RemoteCode = 0x31
	RemotePreviousChannel        RemoteCode = 0x32
	RemoteSoundSelect            RemoteCode = 0x33
	RemoteInputSelect            RemoteCode = 0x34
	RemoteDisplayInformation     RemoteCode = 0x35
	RemoteHelp                   RemoteCode = 0x36
	RemotePageUp                 RemoteCode = 0x37
	RemotePageDown               RemoteCode = 0x38
	RemotePower                  RemoteCode = 0x40
	RemoteVolumeUp               RemoteCode = 0x41
	RemoteVolumeDown             RemoteCode = 0x42
	RemoteMute                   RemoteCode = 0x43
	RemotePlay                   RemoteCode = 0x44
	RemoteStop                   RemoteCode = 0x45
	RemotePause                  RemoteCode = 0x46
	RemoteRecord                 RemoteCode = 0x47
	RemoteRewind                 RemoteCode = 0x48
	RemoteFastForward            RemoteCode = 0x49
	RemoteEject                  RemoteCode = 0x4A
	RemoteForward                RemoteCode = 0x4B
	RemoteBackward               RemoteCode = 0x4C
	RemoteStopRecord             RemoteCode = 0x4D
	RemotePauseRecord            RemoteCode = 0x4E
	RemoteAngle                  RemoteCode = 0x50
	RemoteSubPicture             RemoteCode = 0x51
	RemoteVideoOnDemand          RemoteCode = 0x52
	RemoteElectronicProgramGuide RemoteCode = 0x53
	RemoteTimerProgramming       RemoteCode = 0x54
	RemoteInitialConfiguration   RemoteCode = 0x55
	RemotePlayFunction           RemoteCode = 0x60
	RemotePausePlayFunction      RemoteCode = 0x61
	RemoteRecordFunction         RemoteCode = 0x62
	RemotePauseRecordFunction    RemoteCode = 0x63
	RemoteStopFunction           RemoteCode = 0x64
	RemoteMuteFunction           RemoteCode = 0x65
	RemoteRestoreVolumeFunction  RemoteCode = 0x66
	RemoteTuneFunction           RemoteCode = 0x67
	RemoteSelectMediaFunction    RemoteCode = 0x68
	RemoteSelectAVInputFunction  RemoteCode = 0x69
	RemoteSelectAudioInput       RemoteCode = 0x6A
	RemotePowerToggleFunction    RemoteCode = 0x6B
	RemotePowerOffFunction       RemoteCode = 0x6C
	RemotePowerOnFunction        RemoteCode = 0x6D
	RemoteF1Blue                 RemoteCode = 0x71
	RemoteF2Red                  RemoteCode = 0x72
	RemoteF3Green                RemoteCode = 0x73
	RemoteF4Yellow               RemoteCode = 0x74
	RemoteF5                     RemoteCode = 0x75
	RemoteData                   RemoteCode = 0x76
	RemoteAnReturn               RemoteCode = 0x91
	RemoteAnChannelsList         RemoteCode = 0x96
)

var remoteCodeNames = map[RemoteCode]string{
	RemoteSelect:                 "Select",
	RemoteUp:                     "Up",
	RemoteDown:                   "Down",
	RemoteLeft:                   "Left",
	RemoteRight:                  "Right",
	RemoteRightUp:                "RightUp",
	RemoteRightDown:              "RightDown",
	RemoteLeftUp:                 "LeftUp",
	RemoteLeftDown:               "LeftDown",
	RemoteRootMenu:               "RootMenu",
	RemoteSetupMenu:              "SetupMenu",
	RemoteContentsMenu:           "ContentsMenu",
	RemoteFavoriteMenu:           "FavoriteMenu",
	RemoteExit:                   "Exit",
	RemoteTopMenu:                "TopMenu",
	RemoteDvdMenu:                "DvdMenu",
	RemoteDot:                    "Dot",
	RemoteEnter:                  "Enter",
	RemoteClear:                  "Clear",
	RemoteChannelUp:              "ChannelUp",
	RemoteChannelDown:            "ChannelDown",
	RemotePreviousChannel:        "PreviousChannel",
	RemoteSoundSelect:            "SoundSelect",
	RemoteInputSelect:            "InputSelect",
	RemoteDisplayInformation:     "DisplayInformation",
	RemoteHelp:                   "Help",
	RemotePageUp:                 "PageUp",
	RemotePageDown:               "PageDown",
	RemotePower:                  "Power",
	RemoteVolumeUp:               "VolumeUp",
	RemoteVolumeDown:             "VolumeDown",
	RemoteMute:                   "Mute",
	RemotePlay:                   "Play",
	RemoteStop:                   "Stop",
	RemotePause:                  "Pause",
	RemoteRecord:                 "Record",
	RemoteRewind:                 "Rewind",
	RemoteFastForward:            "FastForward",
	RemoteEject:                  "Eject",
	RemoteForward:                "Forward",
	RemoteBackward:               "Backward",
	RemoteStopRecord:             "StopRecord",
	RemotePauseRecord:            "PauseRecord",
	RemoteAngle:                  "Angle",
	RemoteSubPicture:             "SubPicture",
	RemoteVideoOnDemand:          "VideoOnDemand",
	RemoteElectronicProgramGuide: "ElectronicProgramGuide",
	RemoteTimerProgramming:       "TimerProgramming",
	RemoteInitialConfiguration:   "InitialConfiguration",
	RemotePlayFunction:           "PlayFunction",
	RemotePausePlayFunction:      "PausePlayFunction",
	RemoteRecordFunction:         "RecordFunction",
	RemotePauseRecordFunction:    "PauseRecordFunction",
	RemoteStopFunction:           "StopFunction",
	RemoteMuteFunction:           "MuteFunction",
	RemoteRestoreVolumeFunction:  "RestoreVolumeFunction",
	RemoteTuneFunction:           "TuneFunction",
	RemoteSelectMediaFunction:    "SelectMediaFunction",
	RemoteSelectAVInputFunction:  "SelectAVInputFunction",
	RemoteSelectAudioInput:       "SelectAudioInputFunction",
	RemotePowerToggleFunction:    "PowerToggleFunction",
	RemotePowerOffFunction:       "PowerOffFunction",
	RemotePowerOnFunction:        "PowerOnFunction",
	RemoteF1Blue:                 "F1Blue",
	RemoteF2Red:                  "F2Red",
	RemoteF3Green:                "F3Green",
	RemoteF4Yellow:               "F4Yellow",
	RemoteF5:                     "F5",
	RemoteData:                   "Data",
	RemoteAnReturn:               "AnReturn",
	RemoteAnChannelsList:         "AnChannelsList",
}

func init() {
	for c := RemoteNumber0; c <= RemoteNumber9; c++ {
		remoteCodeNames[c] = fmt.Sprintf("Number%d", c-RemoteNumber0)
	}
}

func (c RemoteCode) String() string {
	if n, ok := remoteCodeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("RemoteCode(%#02x)", uint8(c))
}

// ParseRemoteCode resolves a case-insensitive key name like "F1Blue" or "up".
func ParseRemoteCode(name string) (RemoteCode, error) {
	for c, n := range remoteCodeNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown CEC key name %q", name)
}

// Opcode is a CEC message opcode.
type Opcode uint8

const (
	OpFeatureAbort          Opcode = 0x00
	OpImageViewOn           Opcode = 0x04
	OpTextViewOn            Opcode = 0x0D
	OpStandby               Opcode = 0x36
	OpPlay                  Opcode = 0x41
	OpDeckControl           Opcode = 0x42
	OpUserControlPressed    Opcode = 0x44
	OpUserControlReleased   Opcode = 0x45
	OpGiveOSDName           Opcode = 0x46
	OpSetOSDName            Opcode = 0x47
	OpRoutingChange         Opcode = 0x80
	OpActiveSource          Opcode = 0x82
	OpGivePhysicalAddress   Opcode = 0x83
	OpReportPhysicalAddress Opcode = 0x84
	OpRequestActiveSource   Opcode = 0x85
	OpSetStreamPath         Opcode = 0x86
	OpDeviceVendorID        Opcode = 0x87
	OpVendorCommand         Opcode = 0x89
	OpGiveDeviceVendorID    Opcode = 0x8C
	OpMenuRequest           Opcode = 0x8D
	OpGiveDevicePowerStatus Opcode = 0x8F
	OpReportPowerStatus     Opcode = 0x90
	OpCECVersion            Opcode = 0x9E
	OpGetCECVersion         Opcode = 0x9F
	OpAbort                 Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	OpFeatureAbort:          "FeatureAbort",
	OpImageViewOn:           "ImageViewOn",
	OpTextViewOn:            "TextViewOn",
	OpStandby:               "Standby",
	OpPlay:                  "Play",
	OpDeckControl:           "DeckControl",
	OpUserControlPressed:    "UserControlPressed",
	OpUserControlReleased:   "UserControlReleased",
	OpGiveOSDName:           "GiveOSDName",
	OpSetOSDName:            "SetOSDName",
	OpRoutingChange:         "RoutingChange",
	OpActiveSource:          "ActiveSource",
	OpGivePhysicalAddress:   "GivePhysicalAddress",
	OpReportPhysicalAddress: "ReportPhysicalAddress",
	OpRequestActiveSource:   "RequestActiveSource",
	OpSetStreamPath:         "SetStreamPath",
	OpDeviceVendorID:        "DeviceVendorID",
	OpVendorCommand:         "VendorCommand",
	OpGiveDeviceVendorID:    "GiveDeviceVendorID",
	OpMenuRequest:           "MenuRequest",
	OpGiveDevicePowerStatus: "GiveDevicePowerStatus",
	OpReportPowerStatus:     "ReportPowerStatus",
	OpCECVersion:            "CECVersion",
	OpGetCECVersion:         "GetCECVersion",
	OpAbort:                 "Abort",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Opcode(%#02x)", uint8(o))
}

// LogicalAddress identifies a participant on the CEC bus (0..15).
type LogicalAddress uint8

const (
	AddressTV           LogicalAddress = 0
	AddressRecording1   LogicalAddress = 1
	AddressRecording2   LogicalAddress = 2
	AddressTuner1       LogicalAddress = 3
	AddressPlayback1    LogicalAddress = 4
	AddressAudioSystem  LogicalAddress = 5
	AddressTuner2       LogicalAddress = 6
	AddressTuner3       LogicalAddress = 7
	AddressPlayback2    LogicalAddress = 8
	AddressRecording3   LogicalAddress = 9
	AddressTuner4       LogicalAddress = 10
	AddressPlayback3    LogicalAddress = 11
	AddressFreeUse      LogicalAddress = 14
	AddressBroadcast    LogicalAddress = 15
	AddressUnregistered LogicalAddress = 15
)

var addressNames = map[LogicalAddress]string{
	AddressTV:          "TV",
	AddressRecording1:  "Recording1",
	AddressRecording2:  "Recording2",
	AddressTuner1:      "Tuner1",
	AddressPlayback1:   "Playback1",
	AddressAudioSystem: "AudioSystem",
	AddressTuner2:      "Tuner2",
	AddressTuner3:      "Tuner3",
	AddressPlayback2:   "Playback2",
	AddressRecording3:  "Recording3",
	AddressTuner4:      "Tuner4",
	AddressPlayback3:   "Playback3",
	AddressFreeUse:     "FreeUse",
	AddressBroadcast:   "Broadcast",
}

func (a LogicalAddress) String() string {
	if n, ok := addressNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Reserved%d", uint8(a))
}
