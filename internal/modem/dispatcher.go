package modem

import (
	"bytes"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/metrics"
	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
	"github.com/dbehnke/mumodem/internal/transport"
)

// Request describes one command to put on the wire
type Request struct {
	Command     []byte                // full command line including CRLF
	Expect      protocol.ResponseKind // KindAny accepts any terminal response
	Timeout     time.Duration         // zero selects the default
	MaxResponse int                   // caller result capacity in bytes, zero for unbounded
	SaveFirst   bool                  // an interim *WR line precedes the final response
}

// Result is what a Completion resolves with
type Result struct {
	Response parser.Response
	Err      protocol.Error // BufferTooSmall, or Fail when aborted
	Saved    bool           // the interim save acknowledgement was seen
	Aborted  bool
	Mismatch bool // Response.Kind differs from the expected kind
	Latency  time.Duration
}

// Completion is a one-shot result slot resolved from the poll loop
type Completion struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Done is closed once the result is available
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Ready reports whether the completion has been resolved
func (c *Completion) Ready() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result returns the resolved result; it is the zero Result until Ready
func (c *Completion) Result() Result {
	if !c.Ready() {
		return Result{}
	}
	return c.result
}

func (c *Completion) resolve(r Result) bool {
	resolved := false
	c.once.Do(func() {
		c.result = r
		close(c.done)
		resolved = true
	})
	return resolved
}

// PendingCommand is the single command awaiting its response
type PendingCommand struct {
	req        Request
	timer      *Timer
	completion *Completion
	saved      bool
}

// Expect returns the kind the command is waiting for
func (pc *PendingCommand) Expect() protocol.ResponseKind {
	return pc.req.Expect
}

// Remaining returns time left before the command times out
func (pc *PendingCommand) Remaining() time.Duration {
	return pc.timer.Remaining()
}

// Stats are cumulative dispatcher counters
type Stats struct {
	Issued      uint64 `json:"issued"`
	Rejected    uint64 `json:"rejected"`
	Resolved    uint64 `json:"resolved"`
	Timeouts    uint64 `json:"timeouts"`
	ParseErrors uint64 `json:"parse_errors"`
	Unsolicited uint64 `json:"unsolicited"`
	Dropped     uint64 `json:"dropped"`
}

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	BufferSize       int
	Families         *parser.FamilyTable
	Layouts          parser.Layouts
	Mode             protocol.Mode
	Model            protocol.FrequencyModel
	UnsolicitedQueue int
	MaxBytesPerPoll  int // zero drains everything available
	DefaultTimeout   time.Duration
	Logger           zerolog.Logger
}

// Dispatcher drives the parser from a transport and routes classified
// responses to the single pending command or to the unsolicited queue.
// Every method must be called from the goroutine that owns it.
type Dispatcher struct {
	transport transport.Transport
	clock     Clock
	parser    *parser.Parser
	modes     *ModeController
	log       zerolog.Logger

	pending        *PendingCommand
	events         chan parser.Response
	maxBytes       int
	defaultTimeout time.Duration
	stats          Stats
}

// NewDispatcher wires a parser and mode controller to t
func NewDispatcher(t transport.Transport, clock Clock, opts Options) *Dispatcher {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = protocol.MU_FRAME_BUFFER_SIZE
	}
	if opts.UnsolicitedQueue <= 0 {
		opts.UnsolicitedQueue = protocol.MU_UNSOLICITED_QUEUE
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = protocol.MU_DEFAULT_TIMEOUT
	}

	d := &Dispatcher{
		transport:      t,
		clock:          clock,
		log:            opts.Logger.With().Str("component", "dispatcher").Logger(),
		events:         make(chan parser.Response, opts.UnsolicitedQueue),
		maxBytes:       opts.MaxBytesPerPoll,
		defaultTimeout: opts.DefaultTimeout,
	}
	d.parser = parser.NewParser(opts.BufferSize, opts.Families, opts.Layouts,
		opts.Logger.With().Str("component", "parser").Logger())
	d.modes = newModeController(d.parser, func() bool { return d.pending == nil },
		opts.Mode, opts.Model, d.log)
	return d
}

// Issue validates and writes req, then arms a PendingCommand. The returned
// Completion is nil whenever the Error is not Ok.
func (d *Dispatcher) Issue(req Request) (*Completion, protocol.Error) {
	if d.pending != nil {
		return d.reject(req, protocol.Busy)
	}
	if !validCommand(req.Command) || req.Timeout < 0 || req.MaxResponse < 0 {
		return d.reject(req, protocol.InvalidArg)
	}
	if mode, _ := d.modes.Target(); mode == protocol.FskBin {
		return d.reject(req, protocol.InvalidArg)
	}

	if st := d.transport.Write(req.Command); st != protocol.Ok {
		if st != protocol.FailLbt {
			st = protocol.Fail
		}
		return d.reject(req, st)
	}

	d.log.Debug().
		Str("cmd", string(bytes.TrimRight(req.Command, "\r\n"))).
		Str("expect", req.Expect.String()).
		Msg("command issued")
	return d.arm(req), protocol.Ok
}

// Await arms a PendingCommand without writing anything, for responses the
// modem sends on its own after an earlier command (LBT verdicts, route acks).
func (d *Dispatcher) Await(expect protocol.ResponseKind, timeout time.Duration) (*Completion, protocol.Error) {
	req := Request{Expect: expect, Timeout: timeout}
	if d.pending != nil {
		return d.reject(req, protocol.Busy)
	}
	if timeout < 0 {
		return d.reject(req, protocol.InvalidArg)
	}
	return d.arm(req), protocol.Ok
}

func (d *Dispatcher) arm(req Request) *Completion {
	if req.Timeout == 0 {
		req.Timeout = d.defaultTimeout
	}
	pc := &PendingCommand{
		req:        req,
		timer:      NewTimer(d.clock),
		completion: newCompletion(),
	}
	pc.timer.Start(req.Timeout)
	d.pending = pc
	d.stats.Issued++
	return pc.completion
}

func (d *Dispatcher) reject(req Request, st protocol.Error) (*Completion, protocol.Error) {
	d.stats.Rejected++
	metrics.RecordCommand(st.String(), 0)
	d.log.Debug().
		Str("cmd", string(bytes.TrimRight(req.Command, "\r\n"))).
		Str("result", st.String()).
		Msg("command rejected")
	return nil, st
}

// Poll checks the pending deadline, then feeds available bytes through the
// parser and routes each terminal outcome. It stops early when the pending
// command resolves and returns the bytes consumed.
func (d *Dispatcher) Poll() int {
	d.checkDeadline()

	n := 0
	for d.maxBytes <= 0 || n < d.maxBytes {
		// a CR already read keeps its LF under the old framing
		if !d.parser.AwaitingLF() {
			d.modes.settle()
		}
		b, ok := d.transport.PollByte()
		if !ok {
			break
		}
		n++

		st := d.parser.Feed(b)
		if !st.Terminal() {
			continue
		}
		metrics.RecordParseOutcome(st.String())
		_, model := d.modes.Current()
		resp := parser.Classify(st, d.parser.Line(), model)
		metrics.RecordResponse(resp.Kind.String())
		if resp.Kind == protocol.KindParseError {
			d.stats.ParseErrors++
			d.log.Debug().Str("reason", resp.Reason).Bytes("raw", resp.Raw).Msg("parse error")
		}
		waiting := d.pending != nil
		d.route(resp)
		if waiting && d.pending == nil {
			// let the caller act on the result before more input is read
			break
		}
	}
	d.modes.settle()
	return n
}

func (d *Dispatcher) checkDeadline() {
	if d.pending == nil || !d.pending.timer.HasExpired() {
		return
	}
	d.stats.Timeouts++
	d.parser.Reset()
	d.log.Debug().
		Str("expect", d.pending.req.Expect.String()).
		Dur("timeout", d.pending.timer.Timeout()).
		Msg("command timed out")
	d.resolve(Result{Response: parser.TimeoutResponse()})
}

func (d *Dispatcher) route(resp parser.Response) {
	pc := d.pending
	if pc == nil {
		d.unsolicited(resp)
		return
	}
	expect := pc.req.Expect

	// Received packets interleave with command traffic
	if resp.Kind == protocol.KindDataReceived && expect != protocol.KindDataReceived {
		d.unsolicited(resp)
		return
	}
	if resp.Kind == protocol.KindSaveValue && pc.req.SaveFirst && !pc.saved {
		pc.saved = true
		return
	}

	result := Result{Response: resp}
	if expect != protocol.KindAny && resp.Kind != expect {
		result.Mismatch = true
	}
	if pc.req.MaxResponse > 0 && responseSize(resp) > pc.req.MaxResponse {
		result.Err = protocol.BufferTooSmall
		result.Response = parser.Response{Kind: resp.Kind, Prefix: resp.Prefix}
	}
	d.resolve(result)
}

func (d *Dispatcher) resolve(r Result) {
	pc := d.pending
	d.pending = nil
	r.Saved = pc.saved
	r.Latency = pc.timer.Elapsed()
	pc.timer.Stop()
	if pc.completion.resolve(r) {
		d.stats.Resolved++
		metrics.RecordCommand(resultLabel(r), r.Latency)
	}
}

func (d *Dispatcher) unsolicited(resp parser.Response) {
	select {
	case d.events <- resp:
		d.stats.Unsolicited++
	default:
		d.stats.Dropped++
		metrics.RecordUnsolicitedDrop()
		d.log.Warn().Str("kind", resp.Kind.String()).Msg("unsolicited queue full, event dropped")
	}
}

// Abort drops the pending command and any partial parse. The completion
// resolves with Fail and Aborted set.
func (d *Dispatcher) Abort() {
	d.parser.Reset()
	if d.pending == nil {
		return
	}
	d.log.Debug().Str("expect", d.pending.req.Expect.String()).Msg("command aborted")
	d.resolve(Result{Response: parser.IdleResponse(), Err: protocol.Fail, Aborted: true})
}

// Events delivers classified responses nobody was waiting for
func (d *Dispatcher) Events() <-chan parser.Response {
	return d.events
}

// Pending returns the in-flight command, or nil
func (d *Dispatcher) Pending() *PendingCommand {
	return d.pending
}

// Modes returns the mode controller
func (d *Dispatcher) Modes() *ModeController {
	return d.modes
}

// Parser exposes the byte parser for inspection
func (d *Dispatcher) Parser() *parser.Parser {
	return d.parser
}

// Stats returns a copy of the counters
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

func resultLabel(r Result) string {
	switch {
	case r.Err != protocol.Ok:
		return r.Err.String()
	case r.Response.Kind == protocol.KindTimeout:
		return "Timeout"
	case r.Response.Kind == protocol.KindParseError:
		return "ParseError"
	case r.Mismatch:
		return "Mismatch"
	}
	return protocol.Ok.String()
}

// responseSize is the number of bytes a caller needs to hold the response
func responseSize(r parser.Response) int {
	switch {
	case r.Frame != nil:
		return len(r.Frame.Payload)
	case r.RSSITable != nil:
		return len(r.RSSITable)
	}
	return len(r.Raw)
}

// validCommand checks the @XX...CRLF shape and, for @DT, that the declared
// length matches the payload
func validCommand(cmd []byte) bool {
	if len(cmd) < 5 || cmd[0] != protocol.MU_COMMAND_PREFIX {
		return false
	}
	if !isUpperASCII(cmd[1]) || !isUpperASCII(cmd[2]) {
		return false
	}
	if !bytes.HasSuffix(cmd, []byte(protocol.MU_TERMINATOR)) {
		return false
	}
	if string(cmd[:3]) != protocol.MU_CMD_TRANSMIT {
		return true
	}

	body := cmd[3 : len(cmd)-2]
	if len(body) < 2 {
		return false
	}
	n, err := parser.ParseHexByte(string(body[:2]))
	if err != nil || n == 0 {
		return false
	}
	rest := body[2:]
	if len(rest) < int(n) {
		return false
	}
	tail := rest[n:]
	return len(tail) == 0 || tail[0] == protocol.MU_OPTION_PREFIX
}

func isUpperASCII(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
