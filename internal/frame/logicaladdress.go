package frame

// LogicalAddress is a 4-bit CEC bus address. 0..14 address specific
// devices; 15 is the broadcast/unregistered address.
type LogicalAddress uint8

const (
	AddressTV               LogicalAddress = 0x0
	AddressRecordingDevice1 LogicalAddress = 0x1
	AddressRecordingDevice2 LogicalAddress = 0x2
	AddressTuner1           LogicalAddress = 0x3
	AddressPlaybackDevice1  LogicalAddress = 0x4
	AddressAudioSystem      LogicalAddress = 0x5
	AddressTuner2           LogicalAddress = 0x6
	AddressTuner3           LogicalAddress = 0x7
	AddressPlaybackDevice2  LogicalAddress = 0x8
	AddressRecordingDevice3 LogicalAddress = 0x9
	AddressTuner4           LogicalAddress = 0xA
	AddressPlaybackDevice3  LogicalAddress = 0xB
	AddressReserved1        LogicalAddress = 0xC
	AddressReserved2        LogicalAddress = 0xD
	AddressFreeUse          LogicalAddress = 0xE
	AddressBroadcast        LogicalAddress = 0xF
)

var logicalNames = [16]string{
	"TV", "Recording 1", "Recording 2", "Tuner 1",
	"Playback 1", "Audio", "Tuner 2", "Tuner 3",
	"Playback 2", "Recording 3", "Tuner 4", "Playback 3",
	"Reserved 1", "Reserved 2", "Free use", "Broadcast",
}

func (l LogicalAddress) String() string {
	if l > AddressBroadcast {
		return "Unknown"
	}
	return logicalNames[l]
}

// Valid reports whether l is a well-formed 4-bit address.
func (l LogicalAddress) Valid() bool {
	return l <= AddressBroadcast
}
