package frame

// Opcode is a CEC command byte. The codec treats unknown opcodes as
// opaque — only the ones this bridge actually interprets are named here.
type Opcode uint8

const (
	OpcodeActiveSource          Opcode = 0x82
	OpcodeRequestActiveSource   Opcode = 0x85
	OpcodeSetStreamPath         Opcode = 0x86
	OpcodeStandby               Opcode = 0x36
	OpcodeGiveDevicePowerStatus Opcode = 0x8F
	OpcodeReportPowerStatus     Opcode = 0x90
	OpcodeGiveOSDName           Opcode = 0x46
	OpcodeSetOSDName            Opcode = 0x47
	OpcodeGiveDeviceVendorID    Opcode = 0x8C
	OpcodeDeviceVendorID        Opcode = 0x87
	OpcodeGivePhysicalAddress   Opcode = 0x83
	OpcodeReportPhysicalAddress Opcode = 0x84
	OpcodeGiveDeckStatus        Opcode = 0x1A
	OpcodeDeckStatus            Opcode = 0x1B
	OpcodeGiveAudioStatus       Opcode = 0x71
	OpcodeReportAudioStatus     Opcode = 0x7A
	OpcodeUserControlPressed    Opcode = 0x44
	OpcodeUserControlReleased   Opcode = 0x45
)

// Key codes used by the device control commands (turn_on/turn_off/toggle).
const (
	KeyPowerOn     uint8 = 0x6D
	KeyPowerOff    uint8 = 0x6C
	KeyPowerToggle uint8 = 0x40
)

var opcodeNames = map[Opcode]string{
	OpcodeActiveSource:          "ACTIVE_SOURCE",
	OpcodeRequestActiveSource:   "REQUEST_ACTIVE_SOURCE",
	OpcodeSetStreamPath:         "SET_STREAM_PATH",
	OpcodeStandby:               "STANDBY",
	OpcodeGiveDevicePowerStatus: "GIVE_DEVICE_POWER_STATUS",
	OpcodeReportPowerStatus:     "REPORT_POWER_STATUS",
	OpcodeGiveOSDName:           "GIVE_OSD_NAME",
	OpcodeSetOSDName:            "SET_OSD_NAME",
	OpcodeGiveDeviceVendorID:    "GIVE_DEVICE_VENDOR_ID",
	OpcodeDeviceVendorID:        "DEVICE_VENDOR_ID",
	OpcodeGivePhysicalAddress:   "GIVE_PHYSICAL_ADDRESS",
	OpcodeReportPhysicalAddress: "REPORT_PHYSICAL_ADDRESS",
	OpcodeGiveDeckStatus:        "GIVE_DECK_STATUS",
	OpcodeDeckStatus:            "DECK_STATUS",
	OpcodeGiveAudioStatus:       "GIVE_AUDIO_STATUS",
	OpcodeReportAudioStatus:     "REPORT_AUDIO_STATUS",
	OpcodeUserControlPressed:    "USER_CONTROL_PRESSED",
	OpcodeUserControlReleased:   "USER_CONTROL_RELEASED",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}
