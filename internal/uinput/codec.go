package uinput

import (
	"bytes"
	"encoding/binary"
)

// EncodeEvents serializes events into input_event records and appends SYN_REPORT.
func EncodeEvents(events []Event) []byte {
	var buf bytes.Buffer
	buf.Grow((len(events) + 1) * binary.Size(inputEvent{}))
	for _, ev := range events {
		_ = binary.Write(&buf, binary.NativeEndian, inputEvent{Type: ev.Type, Code: ev.Code, Value: ev.Value})
	}
	_ = binary.Write(&buf, binary.NativeEndian, inputEvent{Type: EvSyn, Code: SynReport})
	return buf.Bytes()
}
