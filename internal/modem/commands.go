package modem

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
)

// buildCommand assembles "<cmd><value>[/W]\r\n"
func buildCommand(cmd, value string, save bool) []byte {
	var b bytes.Buffer
	b.WriteString(cmd)
	b.WriteString(value)
	if save {
		b.WriteString(protocol.MU_SAVE_SUFFIX)
	}
	b.WriteString(protocol.MU_TERMINATOR)
	return b.Bytes()
}

// family returns the two response letters for a command string
func family(cmd string) string {
	return cmd[1:3]
}

// expectValue checks the response family and value
func expectValue(r Result, cmd, value string) error {
	if r.Response.Prefix != family(cmd) || r.Response.Value != value {
		return fmt.Errorf("%w: %s", ErrUnexpected, r.Response.Raw)
	}
	return nil
}

func expectSaved(r Result, save bool) error {
	if save && !r.Saved {
		return fmt.Errorf("%w: missing save acknowledgement", ErrUnexpected)
	}
	return nil
}

// query sends a get command for a GenericResponse family
func (m *Modem) query(ctx context.Context, cmd string) (Result, error) {
	r, err := m.Exec(ctx, Request{
		Command: buildCommand(cmd, "", false),
		Expect:  protocol.KindGenericResponse,
	})
	if err != nil {
		return r, err
	}
	if r.Response.Prefix != family(cmd) {
		return r, fmt.Errorf("%w: %s", ErrUnexpected, r.Response.Raw)
	}
	return r, nil
}

// set sends a set command and checks that the modem echoes value
func (m *Modem) set(ctx context.Context, cmd, arg, echo string, save bool) error {
	r, err := m.Exec(ctx, Request{
		Command:   buildCommand(cmd, arg, save),
		Expect:    protocol.KindGenericResponse,
		SaveFirst: save,
	})
	if err != nil {
		return err
	}
	if err := expectSaved(r, save); err != nil {
		return err
	}
	return expectValue(r, cmd, echo)
}

// Begin resets the modem, waits for it to settle and enables the RSSI
// field on received frames when configured
func (m *Modem) Begin(ctx context.Context) error {
	m.log.Info().Msg("initializing modem")
	if err := m.SoftReset(ctx); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	if err := m.sleep(ctx, protocol.MU_RESET_SETTLE); err != nil {
		return err
	}
	if m.addRssi {
		if err := m.SetAddRssiValue(ctx); err != nil {
			return fmt.Errorf("enable rssi: %w", err)
		}
	}
	mode, model := m.Current()
	m.log.Info().Str("mode", mode.String()).Str("model", model.String()).Msg("modem initialized")
	return nil
}

// SoftReset restarts the modem firmware
func (m *Modem) SoftReset(ctx context.Context) error {
	return m.set(ctx, protocol.MU_CMD_SOFT_RESET, "", protocol.MU_SOFT_RESET_ACK_VALUE, false)
}

// SetAddRssiValue makes the modem report received frames as *DS with RSSI
func (m *Modem) SetAddRssiValue(ctx context.Context) error {
	return m.set(ctx, protocol.MU_CMD_ADD_RSSI, protocol.MU_ON_VALUE, protocol.MU_ON_VALUE, false)
}

// GetChannel returns the current radio channel
func (m *Modem) GetChannel(ctx context.Context) (uint8, error) {
	r, err := m.Exec(ctx, Request{
		Command: buildCommand(protocol.MU_CMD_CHANNEL, "", false),
		Expect:  protocol.KindChannel,
	})
	if err != nil {
		return 0, err
	}
	return r.Response.Channel, nil
}

// SetChannel tunes the radio. Channels outside the frequency model's range
// are rejected with InvalidArg before anything is sent.
func (m *Modem) SetChannel(ctx context.Context, ch uint8, save bool) error {
	if !m.model().ValidChannel(ch) {
		lo, hi := m.model().ChannelRange()
		m.log.Debug().Uint8("channel", ch).Uint8("min", lo).Uint8("max", hi).Msg("channel out of range")
		return protocol.InvalidArg
	}
	r, err := m.Exec(ctx, Request{
		Command:   buildCommand(protocol.MU_CMD_CHANNEL, fmt.Sprintf("%02X", ch), save),
		Expect:    protocol.KindChannel,
		SaveFirst: save,
	})
	if err != nil {
		return err
	}
	if err := expectSaved(r, save); err != nil {
		return err
	}
	if r.Response.Channel != ch {
		return fmt.Errorf("%w: channel 0x%02X, want 0x%02X", ErrUnexpected, r.Response.Channel, ch)
	}

	// A saved channel restarts the radio, which drops the RSSI setting
	if save && m.addRssi {
		if err := m.SetAddRssiValue(ctx); err != nil {
			m.log.Warn().Err(err).Msg("failed to re-enable rssi after channel save")
		}
	}
	return nil
}

func (m *Modem) getHexByte(ctx context.Context, cmd string) (uint8, error) {
	r, err := m.query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := parser.ParseHexByte(r.Response.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v, nil
}

func (m *Modem) setHexByte(ctx context.Context, cmd string, v uint8, save bool) error {
	value := fmt.Sprintf("%02X", v)
	return m.set(ctx, cmd, value, value, save)
}

// GetGroupID returns the group ID
func (m *Modem) GetGroupID(ctx context.Context) (uint8, error) {
	return m.getHexByte(ctx, protocol.MU_CMD_GROUP_ID)
}

// SetGroupID sets the group ID
func (m *Modem) SetGroupID(ctx context.Context, gi uint8, save bool) error {
	return m.setHexByte(ctx, protocol.MU_CMD_GROUP_ID, gi, save)
}

// GetDestinationID returns the destination ID
func (m *Modem) GetDestinationID(ctx context.Context) (uint8, error) {
	return m.getHexByte(ctx, protocol.MU_CMD_DESTINATION_ID)
}

// SetDestinationID sets the destination ID
func (m *Modem) SetDestinationID(ctx context.Context, di uint8, save bool) error {
	return m.setHexByte(ctx, protocol.MU_CMD_DESTINATION_ID, di, save)
}

// GetEquipmentID returns the equipment ID
func (m *Modem) GetEquipmentID(ctx context.Context) (uint8, error) {
	return m.getHexByte(ctx, protocol.MU_CMD_EQUIPMENT_ID)
}

// SetEquipmentID sets the equipment ID
func (m *Modem) SetEquipmentID(ctx context.Context, ei uint8, save bool) error {
	return m.setHexByte(ctx, protocol.MU_CMD_EQUIPMENT_ID, ei, save)
}

// GetUserID returns the factory user ID
func (m *Modem) GetUserID(ctx context.Context) (uint16, error) {
	r, err := m.query(ctx, protocol.MU_CMD_USER_ID)
	if err != nil {
		return 0, err
	}
	if len(r.Response.Value) != 4 {
		return 0, fmt.Errorf("%w: user id %q", ErrParse, r.Response.Value)
	}
	v, err := parser.ParseHex(r.Response.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return uint16(v), nil
}

// GetPower returns the transmit power code
func (m *Modem) GetPower(ctx context.Context) (uint8, error) {
	return m.getHexByte(ctx, protocol.MU_CMD_POWER)
}

// SetPower sets the transmit power; only MU_POWER_LOW and MU_POWER_HIGH exist
func (m *Modem) SetPower(ctx context.Context, power uint8, save bool) error {
	if power != protocol.MU_POWER_LOW && power != protocol.MU_POWER_HIGH {
		return protocol.InvalidArg
	}
	return m.setHexByte(ctx, protocol.MU_CMD_POWER, power, save)
}

// SetBaudRate changes the modem's line rate. The modem switches as soon as
// it answers; the caller must then reconfigure the host port.
func (m *Modem) SetBaudRate(ctx context.Context, baud int, save bool) error {
	code, ok := protocol.MU_BAUD_CODES[baud]
	if !ok {
		return protocol.InvalidArg
	}
	return m.set(ctx, protocol.MU_CMD_BAUD_RATE, code, code, save)
}

// GetSerialNumber returns the numeric part of the serial number
func (m *Modem) GetSerialNumber(ctx context.Context) (uint32, error) {
	r, err := m.Exec(ctx, Request{
		Command: buildCommand(protocol.MU_CMD_SERIAL_NUMBER, "", false),
		Expect:  protocol.KindSerialNumber,
	})
	if err != nil {
		return 0, err
	}
	return r.Response.Serial, nil
}

// RequestSerialNumber issues @SN without waiting. Pass the completion's
// result to SerialNumberResult once it is ready.
func (m *Modem) RequestSerialNumber() (*Completion, protocol.Error) {
	return m.d.Issue(Request{
		Command: buildCommand(protocol.MU_CMD_SERIAL_NUMBER, "", false),
		Expect:  protocol.KindSerialNumber,
		Timeout: protocol.MU_ASYNC_TIMEOUT,
	})
}

// SerialNumberResult extracts the serial number from a RequestSerialNumber result
func SerialNumberResult(r Result) (uint32, error) {
	if err := resultErr(r); err != nil {
		return 0, err
	}
	return r.Response.Serial, nil
}

// GetRssiCurrentChannel returns the noise level on the current channel in dBm
func (m *Modem) GetRssiCurrentChannel(ctx context.Context) (int, error) {
	r, err := m.Exec(ctx, Request{
		Command: buildCommand(protocol.MU_CMD_RSSI_CURRENT, "", false),
		Expect:  protocol.KindRssiCurrentChannel,
	})
	if err != nil {
		return 0, err
	}
	return r.Response.RSSI, nil
}

// RequestRssiCurrentChannel issues @RA without waiting
func (m *Modem) RequestRssiCurrentChannel() (*Completion, protocol.Error) {
	return m.d.Issue(Request{
		Command: buildCommand(protocol.MU_CMD_RSSI_CURRENT, "", false),
		Expect:  protocol.KindRssiCurrentChannel,
		Timeout: protocol.MU_ASYNC_TIMEOUT,
	})
}

// RssiResult extracts the dBm value from a RequestRssiCurrentChannel result
func RssiResult(r Result) (int, error) {
	if err := resultErr(r); err != nil {
		return 0, err
	}
	return r.Response.RSSI, nil
}

// GetAllChannelsRssi scans every channel and writes dBm values into dst,
// lowest channel first. It returns the number of values written.
func (m *Modem) GetAllChannelsRssi(ctx context.Context, dst []int16) (int, error) {
	count := m.model().ChannelCount()
	if len(dst) < count {
		return 0, protocol.BufferTooSmall
	}
	r, err := m.Exec(ctx, Request{
		Command: buildCommand(protocol.MU_CMD_RSSI_ALL, "", false),
		Expect:  protocol.KindRssiAllChannels,
		Timeout: protocol.MU_ALL_RSSI_TIMEOUT,
	})
	if err != nil {
		return 0, err
	}
	return copyRssi(dst, r.Response.RSSITable), nil
}

// RequestAllChannelsRssi issues @RC without waiting
func (m *Modem) RequestAllChannelsRssi() (*Completion, protocol.Error) {
	return m.d.Issue(Request{
		Command: buildCommand(protocol.MU_CMD_RSSI_ALL, "", false),
		Expect:  protocol.KindRssiAllChannels,
		Timeout: protocol.MU_ALL_RSSI_TIMEOUT,
	})
}

func copyRssi(dst []int16, table []int) int {
	for i, v := range table {
		dst[i] = int16(v)
	}
	return len(table)
}

func validPayload(payload []byte) bool {
	return len(payload) > 0 && len(payload) <= protocol.MU_MAX_PAYLOAD_LEN
}

func transmitCommand(payload []byte, option string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s%02X", protocol.MU_CMD_TRANSMIT, len(payload))
	b.Write(payload)
	b.WriteString(option)
	b.WriteString(protocol.MU_TERMINATOR)
	return b.Bytes()
}

// transmit sends a @DT command, checks the length echo and, when lbt is
// set, watches the listen-before-talk window for a *IR=01 rejection
func (m *Modem) transmit(ctx context.Context, cmd []byte, n int, lbt bool) error {
	r, err := m.Exec(ctx, Request{Command: cmd, Expect: protocol.KindDtAck})
	if err != nil {
		return err
	}
	if int(r.Response.AckLength) != n {
		return fmt.Errorf("%w: ack length %d, want %d", ErrUnexpected, r.Response.AckLength, n)
	}
	if !lbt {
		return nil
	}

	r, err = m.await(ctx, protocol.KindGenericResponse, protocol.MU_CARRIER_SENSE_TIMEOUT)
	if err != nil {
		return err
	}
	switch {
	case r.Response.Kind == protocol.KindTimeout:
		return nil
	case r.Response.Prefix == protocol.MU_FAMILY_INFO && r.Response.Value == protocol.MU_LBT_FAIL_VALUE:
		m.log.Debug().Msg("transmission blocked by carrier sense")
		return protocol.FailLbt
	}
	return fmt.Errorf("%w: %s", ErrUnexpected, r.Response.Raw)
}

// TransmitData sends payload over the air and reports FailLbt when the
// channel was busy. useRoute sends along the stored route register.
func (m *Modem) TransmitData(ctx context.Context, payload []byte, useRoute bool) error {
	if !validPayload(payload) {
		return protocol.InvalidArg
	}
	option := ""
	if useRoute {
		option = "/R"
	}
	return m.transmit(ctx, transmitCommand(payload, option), len(payload), true)
}

// TransmitDataFireAndForget returns once the modem accepted the payload,
// without waiting out the listen-before-talk window
func (m *Modem) TransmitDataFireAndForget(ctx context.Context, payload []byte, useRoute bool) error {
	if !validPayload(payload) {
		return protocol.InvalidArg
	}
	option := ""
	if useRoute {
		option = "/R"
	}
	return m.transmit(ctx, transmitCommand(payload, option), len(payload), false)
}

// routeAckTimeout allows 60ms per relay hop on top of a 100ms base
func routeAckTimeout(nodes int) time.Duration {
	return 100*time.Millisecond + time.Duration(nodes)*60*time.Millisecond
}

// TransmitDataWithRoute sends payload along an explicit relay route. With
// requestAck it also waits for the destination's *DR=00 acknowledgement.
func (m *Modem) TransmitDataWithRoute(ctx context.Context, route []uint8, payload []byte, requestAck, outputToRelays bool) error {
	if len(route) == 0 || len(route) > protocol.MU_MAX_ROUTE_NODES || !validPayload(payload) {
		return protocol.InvalidArg
	}
	var opt byte
	switch {
	case outputToRelays && requestAck:
		opt = 'B'
	case outputToRelays:
		opt = 'S'
	case requestAck:
		opt = 'A'
	default:
		opt = 'R'
	}
	option := fmt.Sprintf("/%c %s", opt, parser.FormatRoute(route))
	if err := m.transmit(ctx, transmitCommand(payload, option), len(payload), true); err != nil {
		return err
	}
	if !requestAck {
		return nil
	}

	r, err := m.await(ctx, protocol.KindDataReceived, routeAckTimeout(len(route)))
	if err != nil {
		return err
	}
	if err := resultErr(r); err != nil {
		return err
	}
	if r.Response.Frame == nil || len(r.Response.Frame.Payload) != 0 {
		return fmt.Errorf("%w: %s", ErrUnexpected, r.Response.Raw)
	}
	return nil
}

// CheckCarrierSense asks whether the channel is clear. A busy channel
// returns FailLbt.
func (m *Modem) CheckCarrierSense(ctx context.Context) error {
	r, err := m.Exec(ctx, Request{
		Command: buildCommand(protocol.MU_CMD_CARRIER_SENSE, "", false),
		Expect:  protocol.KindGenericResponse,
		Timeout: protocol.MU_CARRIER_SENSE_TIMEOUT,
	})
	if err != nil {
		return err
	}
	if r.Response.Prefix == protocol.MU_FAMILY_CARRIER_SENSE {
		switch r.Response.Value {
		case protocol.MU_CARRIER_ENABLED_VALUE:
			return nil
		case "DI":
			return protocol.FailLbt
		}
	}
	return fmt.Errorf("%w: %s", ErrUnexpected, r.Response.Raw)
}

// GetRouteInfo returns the stored relay route, nil when none is set
func (m *Modem) GetRouteInfo(ctx context.Context) ([]uint8, error) {
	r, err := m.query(ctx, protocol.MU_CMD_ROUTE_INFO)
	if err != nil {
		return nil, err
	}
	route, err := parser.ParseRoute(r.Response.Value, protocol.MU_MAX_ROUTE_NODES)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return route, nil
}

// SetRouteInfo stores a relay route of 1 to 11 nodes
func (m *Modem) SetRouteInfo(ctx context.Context, route []uint8, save bool) error {
	if len(route) == 0 || len(route) > protocol.MU_MAX_ROUTE_NODES {
		return protocol.InvalidArg
	}
	value := parser.FormatRoute(route)
	return m.set(ctx, protocol.MU_CMD_ROUTE_INFO, " "+value, value, save)
}

// ClearRouteInfo removes the stored relay route
func (m *Modem) ClearRouteInfo(ctx context.Context, save bool) error {
	return m.set(ctx, protocol.MU_CMD_ROUTE_INFO, " "+protocol.MU_ROUTE_CLEAR_VALUE, protocol.MU_ROUTE_CLEAR_VALUE, save)
}

func onOff(enabled bool) string {
	if enabled {
		return protocol.MU_ON_VALUE
	}
	return protocol.MU_OFF_VALUE
}

func (m *Modem) getOnOff(ctx context.Context, cmd string) (bool, error) {
	r, err := m.query(ctx, cmd)
	if err != nil {
		return false, err
	}
	switch r.Response.Value {
	case protocol.MU_ON_VALUE:
		return true, nil
	case protocol.MU_OFF_VALUE:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnexpected, r.Response.Raw)
}

// GetAutoReplyRoute reports whether replies automatically follow the reverse route
func (m *Modem) GetAutoReplyRoute(ctx context.Context) (bool, error) {
	return m.getOnOff(ctx, protocol.MU_CMD_AUTO_REPLY_ROUTE)
}

// SetAutoReplyRoute enables or disables automatic reverse-route replies
func (m *Modem) SetAutoReplyRoute(ctx context.Context, enabled, save bool) error {
	v := onOff(enabled)
	return m.set(ctx, protocol.MU_CMD_AUTO_REPLY_ROUTE, v, v, save)
}

// GetRouteInfoAddMode reports whether received frames carry their route
func (m *Modem) GetRouteInfoAddMode(ctx context.Context) (bool, error) {
	return m.getOnOff(ctx, protocol.MU_CMD_ROUTE_INFO_ADD)
}

// SetRouteInfoAddMode enables or disables the /R route tail on *DR frames
func (m *Modem) SetRouteInfoAddMode(ctx context.Context, enabled, save bool) error {
	v := onOff(enabled)
	return m.set(ctx, protocol.MU_CMD_ROUTE_INFO_ADD, " "+v, v, save)
}

// SendRawCommand writes a complete command line and returns the raw
// response line. A response longer than maxResponse yields BufferTooSmall.
func (m *Modem) SendRawCommand(ctx context.Context, cmd []byte, maxResponse int, timeout time.Duration) ([]byte, error) {
	if maxResponse <= 0 {
		return nil, protocol.InvalidArg
	}
	r, err := m.Exec(ctx, Request{
		Command:     cmd,
		Expect:      protocol.KindAny,
		Timeout:     timeout,
		MaxResponse: maxResponse,
	})
	if err != nil {
		return nil, err
	}
	return r.Response.Raw, nil
}
