package parser

import (
	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/protocol"
)

// frameMarks tracks the data frame being assembled in the buffer
type frameMarks struct {
	active       bool
	size         int
	payloadStart int
	rssi         int
	hasRSSI      bool
	payloadDone  bool
	optionStart  int // buffer offset of '/', -1 when absent
}

// Parser turns a serial byte stream into parse outcomes, one byte at a time.
// All state lives in the struct; Feed never allocates or blocks.
type Parser struct {
	buf      *FrameBuffer
	families *FamilyTable
	layouts  Layouts
	log      zerolog.Logger

	mode  protocol.Mode
	model protocol.FrequencyModel

	state   State
	discard bool // inside a garbage run, waiting for a terminator
	quiet   bool // discard without reporting Garbage (tail of an overflow)
	skip    int  // bytes to drop silently after a frame overflow
	skipEnd bool // after skip, discard quietly until a terminator

	family Family
	known  bool
	frame  frameMarks
	digits int
	acc    int
	remain int
}

// NewParser creates a parser with its own frame buffer
func NewParser(capacity int, families *FamilyTable, layouts Layouts, log zerolog.Logger) *Parser {
	if families == nil {
		families = DefaultFamilies()
	}
	if layouts == nil {
		layouts = DefaultLayouts()
	}
	p := &Parser{
		buf:      NewFrameBuffer(capacity),
		families: families,
		layouts:  layouts,
		log:      log,
	}
	p.Reset()
	return p
}

// Reset drops any partial line or frame and returns to Start
func (p *Parser) Reset() {
	p.buf.Reset()
	p.state = StateStart
	p.discard = false
	p.quiet = false
	p.skip = 0
	p.skipEnd = false
	p.clearCycle()
}

func (p *Parser) clearCycle() {
	p.family = Family{}
	p.known = false
	p.frame = frameMarks{optionStart: -1}
	p.digits = 0
	p.acc = 0
	p.remain = 0
}

// State returns the current parser state
func (p *Parser) State() State {
	return p.state
}

// Buffer exposes the frame buffer for inspection
func (p *Parser) Buffer() *FrameBuffer {
	return p.buf
}

// Framing returns the mode and frequency model bytes are parsed under
func (p *Parser) Framing() (protocol.Mode, protocol.FrequencyModel) {
	return p.mode, p.model
}

// AtBoundary reports whether no line or frame is partially parsed, so the
// framing may change before the next byte.
func (p *Parser) AtBoundary() bool {
	if p.discard || p.skip > 0 {
		return false
	}
	switch p.state {
	case StateStart, StateReadCmdUntilLF, StateReadOptionUntilLF:
		return true
	}
	return false
}

// AwaitingLF reports whether the last text line ended in CR and its LF may
// still follow
func (p *Parser) AwaitingLF() bool {
	return p.mode == protocol.FskCmd && (p.state == StateReadCmdUntilLF || p.state == StateReadOptionUntilLF)
}

// SetFraming changes the mode and frequency model. Callers must only do
// this at a boundary; ModeController enforces it. A pending LF absorb after
// a CR belongs to the old text framing and is dropped on a mode change.
func (p *Parser) SetFraming(mode protocol.Mode, model protocol.FrequencyModel) {
	if mode != p.mode {
		p.state = StateStart
	}
	p.mode = mode
	p.model = model
}

// Feed advances the state machine by one byte
func (p *Parser) Feed(b byte) CmdState {
	if p.skip > 0 {
		p.skip--
		if p.skip == 0 && p.skipEnd {
			p.skipEnd = false
			p.discard = true
			p.quiet = true
		}
		return Parsing
	}

	// CRLF pair absorption
	if p.AwaitingLF() {
		p.state = StateStart
		if b == protocol.MU_LF {
			return Parsing
		}
	}

	if p.discard {
		if !isTerminator(b) {
			return Parsing
		}
		quiet := p.quiet
		p.discard = false
		p.quiet = false
		p.buf.Reset()
		p.closeLine(b, StateReadCmdUntilLF)
		if quiet {
			return Parsing
		}
		p.log.Trace().Msg("garbage run resynchronized")
		return Garbage
	}

	switch p.state {
	case StateStart:
		return p.start(b)
	case StateReadCmdFirstLetter:
		if !isUpper(b) {
			return p.reject(b)
		}
		p.state = StateReadCmdSecondLetter
		return p.push(b)
	case StateReadCmdSecondLetter:
		if !isUpper(b) {
			return p.reject(b)
		}
		if st := p.push(b); st != Parsing {
			return st
		}
		raw := p.buf.Bytes()
		p.family, p.known = p.families.Lookup(string(raw[1:3]))
		if p.family.Framing == FramingRaw {
			p.state = StateReadRawString
		} else {
			p.state = StateReadCmdParam
		}
		return Parsing
	case StateReadCmdParam:
		return p.param(b)
	case StateReadRawString:
		if isTerminator(b) {
			return p.finish(b, StateReadCmdUntilLF)
		}
		return p.push(b)
	case StateReadCmdUntilCR:
		if isTerminator(b) {
			return p.finish(b, StateReadCmdUntilLF)
		}
		if b == protocol.MU_OPTION_PREFIX {
			p.frame.optionStart = p.buf.Len()
			p.state = StateReadOptionUntilCR
		}
		return p.push(b)
	case StateReadOptionUntilCR:
		return p.option(b)
	case StateRadioDrSize:
		return p.size(b)
	case StateRadioDrSkipAddress:
		p.remain--
		if p.remain == 0 {
			return p.enterPayload()
		}
		return Parsing
	case StateRadioDrPayload:
		if st := p.push(b); st != Parsing {
			return st
		}
		p.remain--
		if p.remain == 0 {
			return p.afterPayload()
		}
		return Parsing
	case StateReadDsRSSI:
		return p.rssi(b)
	}

	p.log.Warn().Str("state", p.state.String()).Msg("parser in unexpected state, resetting")
	p.Reset()
	return Parsing
}

func (p *Parser) start(b byte) CmdState {
	p.buf.Reset()
	p.clearCycle()

	if p.mode == protocol.FskBin {
		p.frame.active = true
		p.state = StateRadioDrSize
		return p.size(b)
	}

	switch {
	case b == protocol.MU_RESPONSE_PREFIX:
		p.state = StateReadCmdFirstLetter
		return p.push(b)
	case b == protocol.MU_CR || b == protocol.MU_LF || b == 0:
		return Parsing
	}
	return p.reject(b)
}

func (p *Parser) param(b byte) CmdState {
	switch {
	case b == protocol.MU_PARAM_DELIMITER:
		if st := p.push(b); st != Parsing {
			return st
		}
		switch p.family.Framing {
		case FramingDataFrame:
			p.frame.active = true
			p.state = StateRadioDrSize
		case FramingDataFrameRSSI:
			p.frame.active = true
			p.state = StateReadDsRSSI
		default:
			p.state = StateReadCmdUntilCR
		}
		return Parsing
	case isTerminator(b):
		return p.finish(b, StateReadCmdUntilLF)
	}
	return p.reject(b)
}

// option handles the bytes after a data frame payload or after a '/'
func (p *Parser) option(b byte) CmdState {
	if isTerminator(b) {
		return p.finish(b, StateReadOptionUntilLF)
	}
	if p.frame.active && p.frame.optionStart < 0 {
		if b != protocol.MU_OPTION_PREFIX {
			return p.reject(b)
		}
		p.frame.optionStart = p.buf.Len()
	}
	return p.push(b)
}

func (p *Parser) size(b byte) CmdState {
	if p.mode == protocol.FskBin {
		if st := p.push(b); st != Parsing {
			return st
		}
		return p.beginFrame(int(b))
	}
	n, ok := hexNibble(b)
	if !ok {
		return p.reject(b)
	}
	if st := p.push(b); st != Parsing {
		return st
	}
	p.acc = p.acc<<4 | n
	p.digits++
	if p.digits < 2 {
		return Parsing
	}
	size := p.acc
	p.digits, p.acc = 0, 0
	return p.beginFrame(size)
}

func (p *Parser) beginFrame(n int) CmdState {
	p.frame.size = n
	if n >= p.buf.Remaining() {
		return p.frameOverflow(n)
	}
	p.frame.payloadStart = p.buf.Len()
	if p.mode == protocol.FskBin {
		if width := p.layouts.For(p.model).AddressWidth; width > 0 {
			p.remain = width
			p.state = StateRadioDrSkipAddress
			return Parsing
		}
	}
	return p.enterPayload()
}

func (p *Parser) enterPayload() CmdState {
	if p.frame.size == 0 {
		return p.afterPayload()
	}
	p.remain = p.frame.size
	p.state = StateRadioDrPayload
	return Parsing
}

func (p *Parser) afterPayload() CmdState {
	p.frame.payloadDone = true
	if p.mode == protocol.FskBin {
		p.state = StateReadDsRSSI
	} else {
		p.state = StateReadOptionUntilCR
	}
	return Parsing
}

func (p *Parser) rssi(b byte) CmdState {
	if p.mode == protocol.FskBin {
		p.frame.rssi = -int(b)
		p.frame.hasRSSI = true
		p.state = StateStart
		return FinishedDrResponse
	}
	n, ok := hexNibble(b)
	if !ok {
		return p.reject(b)
	}
	if st := p.push(b); st != Parsing {
		return st
	}
	p.acc = p.acc<<4 | n
	p.digits++
	if p.digits < 2 {
		return Parsing
	}
	p.frame.rssi = -p.acc
	p.frame.hasRSSI = true
	p.digits, p.acc = 0, 0
	p.state = StateRadioDrSize
	return Parsing
}

// push appends b and reports Overflow once the cursor reaches capacity
func (p *Parser) push(b byte) CmdState {
	if p.buf.Append(b) && p.buf.Remaining() > 0 {
		return Parsing
	}
	p.log.Trace().Int("cap", p.buf.Cap()).Msg("frame buffer overflow")
	p.buf.Reset()
	p.clearCycle()
	p.state = StateStart
	if p.mode == protocol.FskCmd {
		p.discard = true
		p.quiet = true
	}
	return Overflow
}

// frameOverflow handles a size field larger than the buffer can hold. The
// declared bytes are skipped so they are not reparsed as new input.
func (p *Parser) frameOverflow(n int) CmdState {
	p.log.Trace().Int("size", n).Int("remaining", p.buf.Remaining()).Msg("data frame does not fit")
	if p.mode == protocol.FskBin {
		p.skip = p.layouts.For(p.model).AddressWidth + n + 1
	} else {
		p.skip = n
		p.skipEnd = true
	}
	p.buf.Reset()
	p.clearCycle()
	p.state = StateStart
	return Overflow
}

// reject starts a garbage run at b, or reports it at once when b already
// ends the line.
func (p *Parser) reject(b byte) CmdState {
	p.buf.Reset()
	p.clearCycle()
	if isTerminator(b) {
		p.closeLine(b, StateReadCmdUntilLF)
		return Garbage
	}
	p.state = StateStart
	p.discard = true
	return Parsing
}

func (p *Parser) finish(b byte, absorb State) CmdState {
	p.closeLine(b, absorb)
	if p.frame.active {
		return FinishedDrResponse
	}
	return FinishedCmdResponse
}

func (p *Parser) closeLine(b byte, absorb State) {
	if b == protocol.MU_CR {
		p.state = absorb
		return
	}
	p.state = StateStart
}

// Line snapshots the buffer after a terminal outcome. It must be called
// before the next Feed.
func (p *Parser) Line() Line {
	raw := append([]byte(nil), p.buf.Bytes()...)
	line := Line{Raw: raw, Family: p.family, Known: p.known}
	if len(raw) >= 3 && raw[0] == protocol.MU_RESPONSE_PREFIX {
		line.Prefix = string(raw[1:3])
	}
	if p.frame.active && p.frame.payloadDone {
		end := p.frame.payloadStart + p.frame.size
		frame := &RadioDataFrame{
			Payload: raw[p.frame.payloadStart:end],
			RSSI:    p.frame.rssi,
			HasRSSI: p.frame.hasRSSI,
		}
		if p.frame.optionStart >= 0 {
			line.Option = string(raw[p.frame.optionStart+1:])
		}
		line.Frame = frame
		return line
	}
	switch {
	case p.family.Framing == FramingRaw && len(raw) >= 3:
		line.Value = string(raw[3:])
	case len(raw) >= 4 && raw[3] == protocol.MU_PARAM_DELIMITER:
		end := len(raw)
		if p.frame.optionStart >= 0 {
			end = p.frame.optionStart
			line.Option = string(raw[p.frame.optionStart+1:])
		}
		line.Value = string(raw[4:end])
	}
	return line
}
