package protocol

import "time"

// MU modem command set constants (MU-3 429 MHz / MU-4 1216 MHz)

const (
	// Line framing
	MU_COMMAND_PREFIX  = '@' // Host → modem command marker
	MU_RESPONSE_PREFIX = '*' // Modem → host response marker
	MU_PARAM_DELIMITER = '=' // Separates the two-letter family from its value
	MU_OPTION_PREFIX   = '/' // Starts an option tail (/W, /R, /A, /B, /S)
	MU_CR              = '\r'
	MU_LF              = '\n'
	MU_TERMINATOR      = "\r\n"

	// Payload limits
	MU_MAX_PAYLOAD_LEN      = 255 // Largest @DT payload
	MU_MAX_ROUTE_NODES      = 11  // Repeaters in a @DT route (destination excluded)
	MU_MAX_DR_ROUTE_NODES   = 12  // Nodes reported in a *DR=/R tail
	MU_FRAME_BUFFER_SIZE    = 320 // Receive frame buffer (header + payload + route tail)
	MU_UNSOLICITED_QUEUE    = 16  // Unsolicited event channel depth
	MU_RING_BUFFER_SIZE     = 1024
	MU_SERIAL_NUMBER_MINLEN = 12 // "*SN=" + at least 8 characters

	// Channel numbering per frequency model
	MU_429_CHANNEL_MIN  = 0x07
	MU_429_CHANNEL_MAX  = 0x2E
	MU_1216_CHANNEL_MIN = 0x02
	MU_1216_CHANNEL_MAX = 0x14

	// Transmit power codes
	MU_POWER_LOW  = 0x01 // 1 mW
	MU_POWER_HIGH = 0x10 // 10 mW

	// Binary frame address width (bytes between size and payload)
	MU_429_ADDRESS_WIDTH  = 1
	MU_1216_ADDRESS_WIDTH = 2

	MU_DEFAULT_BAUD = 19200
)

// Default timeouts
const (
	MU_DEFAULT_TIMEOUT       = 500 * time.Millisecond
	MU_CARRIER_SENSE_TIMEOUT = 50 * time.Millisecond
	MU_ALL_RSSI_TIMEOUT      = 2500 * time.Millisecond
	MU_ASYNC_TIMEOUT         = 1000 * time.Millisecond
	MU_RESET_SETTLE          = 150 * time.Millisecond
)

// Command strings (terminator appended by the builder)
const (
	MU_CMD_CHANNEL           = "@CH"
	MU_CMD_GROUP_ID          = "@GI"
	MU_CMD_DESTINATION_ID    = "@DI"
	MU_CMD_EQUIPMENT_ID      = "@EI"
	MU_CMD_USER_ID           = "@UI"
	MU_CMD_POWER             = "@PW"
	MU_CMD_BAUD_RATE         = "@BR"
	MU_CMD_SERIAL_NUMBER     = "@SN"
	MU_CMD_RSSI_CURRENT      = "@RA"
	MU_CMD_RSSI_ALL          = "@RC"
	MU_CMD_ROUTE_INFO        = "@RT"
	MU_CMD_AUTO_REPLY_ROUTE  = "@RR"
	MU_CMD_ROUTE_INFO_ADD    = "@RI"
	MU_CMD_ADD_RSSI          = "@SI"
	MU_CMD_SOFT_RESET        = "@SR"
	MU_CMD_CARRIER_SENSE     = "@CS"
	MU_CMD_TRANSMIT          = "@DT"
	MU_SAVE_SUFFIX           = "/W"
	MU_ROUTE_CLEAR_VALUE     = "NA"
	MU_ON_VALUE              = "ON"
	MU_OFF_VALUE             = "OF"
	MU_SAVE_ACK_VALUE        = "PS"
	MU_SOFT_RESET_ACK_VALUE  = "00"
	MU_CARRIER_ENABLED_VALUE = "EN"
	MU_LBT_FAIL_VALUE        = "01"
)

// Response family prefixes
const (
	MU_FAMILY_CHANNEL        = "CH"
	MU_FAMILY_SAVE           = "WR"
	MU_FAMILY_SERIAL         = "SN"
	MU_FAMILY_TRANSMIT_ACK   = "DT"
	MU_FAMILY_RSSI_CURRENT   = "RA"
	MU_FAMILY_RSSI_ALL       = "RC"
	MU_FAMILY_SHOW_MODE      = "MO"
	MU_FAMILY_DATA           = "DR"
	MU_FAMILY_DATA_RSSI      = "DS"
	MU_FAMILY_INFO           = "IR"
	MU_FAMILY_GROUP_ID       = "GI"
	MU_FAMILY_DESTINATION_ID = "DI"
	MU_FAMILY_EQUIPMENT_ID   = "EI"
	MU_FAMILY_USER_ID        = "UI"
	MU_FAMILY_POWER          = "PW"
	MU_FAMILY_BAUD_RATE      = "BR"
	MU_FAMILY_ROUTE_INFO     = "RT"
	MU_FAMILY_AUTO_REPLY     = "RR"
	MU_FAMILY_ROUTE_INFO_ADD = "RI"
	MU_FAMILY_ADD_RSSI       = "SI"
	MU_FAMILY_SOFT_RESET     = "SR"
	MU_FAMILY_CARRIER_SENSE  = "CS"
)

// MU_BAUD_CODES maps a line rate to its @BR parameter
var MU_BAUD_CODES = map[int]string{
	1200:  "12",
	2400:  "24",
	4800:  "48",
	9600:  "96",
	19200: "19",
	38400: "38",
	57600: "57",
}
