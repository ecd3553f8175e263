package modem

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dbehnke/mumodem/internal/parser"
	"github.com/dbehnke/mumodem/internal/protocol"
	"github.com/dbehnke/mumodem/internal/transport"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestDispatcher(opts Options) (*Dispatcher, *transport.Memory, *ManualClock) {
	mem := transport.NewMemory(0)
	clock := NewManualClock(epoch)
	opts.Logger = zerolog.Nop()
	return NewDispatcher(mem, clock, opts), mem, clock
}

func cmd(s string) []byte {
	return []byte(s)
}

func TestDispatcher_IssueResolvesWithResponse(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})

	c, st := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel})
	if st != protocol.Ok {
		t.Fatalf("Issue() = %v, want Ok", st)
	}
	if got := string(mem.Written()[0]); got != "@CH\r\n" {
		t.Errorf("written = %q, want %q", got, "@CH\r\n")
	}

	mem.InjectString("*CH=0E\r\n")
	d.Poll()

	if !c.Ready() {
		t.Fatal("completion not ready after response")
	}
	r := c.Result()
	if r.Response.Kind != protocol.KindChannel || r.Response.Channel != 0x0E {
		t.Errorf("Result().Response = %v, want Channel(0x0E)", r.Response)
	}
	if r.Mismatch || r.Err != protocol.Ok {
		t.Errorf("Result() mismatch=%v err=%v, want clean", r.Mismatch, r.Err)
	}
	if d.Pending() != nil {
		t.Error("Pending() != nil after resolution")
	}
}

func TestDispatcher_BusyLeavesStateUntouched(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})

	if _, st := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel}); st != protocol.Ok {
		t.Fatalf("first Issue() = %v, want Ok", st)
	}
	// half a line in the frame buffer
	mem.InjectString("*CH")
	d.Poll()
	before := d.Parser().Buffer().String()
	state := d.Parser().State()

	c, st := d.Issue(Request{Command: cmd("@GI\r\n"), Expect: protocol.KindGenericResponse})
	if st != protocol.Busy {
		t.Errorf("second Issue() = %v, want Busy", st)
	}
	if c != nil {
		t.Error("second Issue() returned a completion")
	}
	if len(mem.Written()) != 1 {
		t.Errorf("len(Written()) = %d, want 1", len(mem.Written()))
	}
	if d.Parser().Buffer().String() != before || d.Parser().State() != state {
		t.Error("Busy issue mutated the parser")
	}
	if _, st := d.Await(protocol.KindAny, 0); st != protocol.Busy {
		t.Errorf("Await() = %v, want Busy", st)
	}
}

func TestDispatcher_InvalidArg(t *testing.T) {
	tests := []struct {
		name    string
		command string
		timeout time.Duration
	}{
		{"empty", "", 0},
		{"no prefix", "CH\r\n", 0},
		{"lowercase family", "@ch\r\n", 0},
		{"missing terminator", "@CH0E", 0},
		{"lf only", "@CH0E\n", 0},
		{"transmit length too long", "@DT05abc\r\n", 0},
		{"transmit length zero", "@DT00\r\n", 0},
		{"transmit bad hex", "@DTzzabc\r\n", 0},
		{"transmit trailing junk", "@DT02abcd\r\n", 0},
		{"negative timeout", "@CH\r\n", -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, mem, _ := newTestDispatcher(Options{})
			_, st := d.Issue(Request{Command: cmd(tt.command), Expect: protocol.KindAny, Timeout: tt.timeout})
			if st != protocol.InvalidArg {
				t.Errorf("Issue() = %v, want InvalidArg", st)
			}
			if len(mem.Written()) != 0 {
				t.Error("invalid command reached the transport")
			}
			if d.Pending() != nil {
				t.Error("invalid command created a pending command")
			}
		})
	}
}

func TestDispatcher_ValidTransmitCommands(t *testing.T) {
	tests := []string{
		"@DT03abc\r\n",
		"@DT03a/c\r\n",
		"@DT03abc/R\r\n",
		"@DT03abc/A 01,02\r\n",
	}
	for _, command := range tests {
		if !validCommand(cmd(command)) {
			t.Errorf("validCommand(%q) = false, want true", command)
		}
	}
}

func TestDispatcher_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		inject protocol.Error
		want   protocol.Error
	}{
		{"lbt passes through", protocol.FailLbt, protocol.FailLbt},
		{"fail", protocol.Fail, protocol.Fail},
		{"other errors collapse to fail", protocol.BufferTooSmall, protocol.Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, mem, _ := newTestDispatcher(Options{})
			mem.FailNextWrite(tt.inject)
			c, st := d.Issue(Request{Command: cmd("@DT01x\r\n"), Expect: protocol.KindDtAck})
			if st != tt.want {
				t.Errorf("Issue() = %v, want %v", st, tt.want)
			}
			if c != nil || d.Pending() != nil {
				t.Error("failed write left a pending command")
			}
			// the slot is free again
			if _, st := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel}); st != protocol.Ok {
				t.Errorf("Issue() after failure = %v, want Ok", st)
			}
		})
	}
}

func TestDispatcher_TimeoutAtExactDeadline(t *testing.T) {
	d, mem, clock := newTestDispatcher(Options{})

	c, st := d.Issue(Request{Command: cmd("@SN\r\n"), Expect: protocol.KindSerialNumber, Timeout: 200 * time.Millisecond})
	if st != protocol.Ok {
		t.Fatalf("Issue() = %v, want Ok", st)
	}

	// a partial line that must be discarded at expiry
	mem.InjectString("*SN=12")
	d.Poll()

	clock.Advance(199 * time.Millisecond)
	d.Poll()
	if c.Ready() {
		t.Fatal("resolved before the deadline")
	}

	clock.Advance(time.Millisecond)
	d.Poll()
	if !c.Ready() {
		t.Fatal("not resolved at the deadline")
	}
	r := c.Result()
	if r.Response.Kind != protocol.KindTimeout {
		t.Errorf("Result().Response.Kind = %v, want Timeout", r.Response.Kind)
	}
	if r.Latency != 200*time.Millisecond {
		t.Errorf("Result().Latency = %v, want 200ms", r.Latency)
	}
	if d.Parser().Buffer().Len() != 0 || d.Parser().State() != parser.StateStart {
		t.Error("partial line survived the timeout")
	}
	if d.Stats().Timeouts != 1 {
		t.Errorf("Stats().Timeouts = %d, want 1", d.Stats().Timeouts)
	}
}

func TestDispatcher_DefaultTimeout(t *testing.T) {
	d, _, clock := newTestDispatcher(Options{})
	c, _ := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel})

	clock.Advance(protocol.MU_DEFAULT_TIMEOUT - time.Nanosecond)
	d.Poll()
	if c.Ready() {
		t.Fatal("resolved before the default timeout")
	}
	clock.Advance(time.Nanosecond)
	d.Poll()
	if c.Result().Response.Kind != protocol.KindTimeout {
		t.Errorf("Result().Response.Kind = %v, want Timeout", c.Result().Response.Kind)
	}
}

func TestDispatcher_BufferTooSmall(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})

	c, st := d.Issue(Request{Command: cmd("@SN\r\n"), Expect: protocol.KindAny, MaxResponse: 4})
	if st != protocol.Ok {
		t.Fatalf("Issue() = %v, want Ok", st)
	}
	mem.InjectString("*SN=12345678\r\n")
	d.Poll()

	r := c.Result()
	if r.Err != protocol.BufferTooSmall {
		t.Errorf("Result().Err = %v, want BufferTooSmall", r.Err)
	}
	if len(r.Response.Raw) != 0 {
		t.Errorf("Result().Response.Raw = %q, want empty", r.Response.Raw)
	}
	if d.Pending() != nil {
		t.Error("BufferTooSmall did not free the pending slot")
	}
}

func TestDispatcher_ParseErrorResolvesPending(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})
	c, _ := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel})

	mem.InjectString("*CH=ZZ\r\n")
	d.Poll()

	if c.Result().Response.Kind != protocol.KindParseError {
		t.Errorf("Result().Response.Kind = %v, want ParseError", c.Result().Response.Kind)
	}
	if d.Stats().ParseErrors != 1 {
		t.Errorf("Stats().ParseErrors = %d, want 1", d.Stats().ParseErrors)
	}
}

func TestDispatcher_MismatchIsFlagged(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})
	c, _ := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel})

	mem.InjectString("*GI=01\r\n")
	d.Poll()

	r := c.Result()
	if !r.Mismatch {
		t.Error("Result().Mismatch = false, want true")
	}
	if r.Response.Kind != protocol.KindGenericResponse {
		t.Errorf("Result().Response.Kind = %v, want GenericResponse", r.Response.Kind)
	}
}

func TestDispatcher_UnsolicitedData(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})

	// no command pending
	mem.InjectString("*DR=03abc\r\n")
	d.Poll()

	// a packet interleaved with a command response
	c, _ := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel})
	mem.InjectString("*DS=2A02hi\r\n*CH=10\r\n")
	d.Poll()

	if c.Result().Response.Channel != 0x10 {
		t.Errorf("Result().Response = %v, want Channel(0x10)", c.Result().Response)
	}

	want := []struct {
		payload string
		rssi    int
	}{{"abc", 0}, {"hi", -42}}
	for i, w := range want {
		select {
		case ev := <-d.Events():
			if ev.Kind != protocol.KindDataReceived || string(ev.Frame.Payload) != w.payload {
				t.Errorf("event %d = %v, want payload %q", i, ev, w.payload)
			}
			if ev.Frame.RSSI != w.rssi {
				t.Errorf("event %d RSSI = %d, want %d", i, ev.Frame.RSSI, w.rssi)
			}
		default:
			t.Fatalf("event %d missing", i)
		}
	}
	if d.Stats().Unsolicited != 2 {
		t.Errorf("Stats().Unsolicited = %d, want 2", d.Stats().Unsolicited)
	}
}

func TestDispatcher_UnsolicitedQueueFullDrops(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{UnsolicitedQueue: 2})

	mem.InjectString("*DR=01a\r\n*DR=01b\r\n*DR=01c\r\n")
	d.Poll()

	if len(d.Events()) != 2 {
		t.Errorf("len(Events()) = %d, want 2", len(d.Events()))
	}
	if d.Stats().Dropped != 1 {
		t.Errorf("Stats().Dropped = %d, want 1", d.Stats().Dropped)
	}
	first := <-d.Events()
	if string(first.Frame.Payload) != "a" {
		t.Errorf("first event payload = %q, want %q", first.Frame.Payload, "a")
	}
}

func TestDispatcher_SaveFirst(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})
	c, _ := d.Issue(Request{Command: cmd("@CH0E/W\r\n"), Expect: protocol.KindChannel, SaveFirst: true})

	mem.InjectString("*WR=PS\r\n")
	d.Poll()
	if c.Ready() {
		t.Fatal("resolved on the interim save acknowledgement")
	}

	mem.InjectString("*CH=0E\r\n")
	d.Poll()
	r := c.Result()
	if !r.Saved {
		t.Error("Result().Saved = false, want true")
	}
	if r.Response.Channel != 0x0E {
		t.Errorf("Result().Response = %v, want Channel(0x0E)", r.Response)
	}
}

func TestDispatcher_StopsAfterResolution(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})
	c, _ := d.Issue(Request{Command: cmd("@DT01x\r\n"), Expect: protocol.KindDtAck})

	mem.InjectString("*DT=01\r\n*IR=01\r\n")
	d.Poll()
	if !c.Ready() {
		t.Fatal("ack not delivered")
	}

	lbt, st := d.Await(protocol.KindGenericResponse, protocol.MU_CARRIER_SENSE_TIMEOUT)
	if st != protocol.Ok {
		t.Fatalf("Await() = %v, want Ok", st)
	}
	d.Poll()
	r := lbt.Result()
	if r.Response.Prefix != protocol.MU_FAMILY_INFO || r.Response.Value != "01" {
		t.Errorf("Await result = %v, want *IR=01", r.Response)
	}
	if len(d.Events()) != 0 {
		t.Error("follow-up line leaked to the unsolicited queue")
	}
}

func TestDispatcher_Abort(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{})
	c, _ := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel})
	mem.InjectString("*CH=0")
	d.Poll()

	d.Abort()

	r := c.Result()
	if !r.Aborted || r.Err != protocol.Fail {
		t.Errorf("Result() aborted=%v err=%v, want aborted Fail", r.Aborted, r.Err)
	}
	if d.Pending() != nil {
		t.Error("Pending() != nil after Abort")
	}
	if d.Parser().State() != parser.StateStart || d.Parser().Buffer().Len() != 0 {
		t.Error("parser not reset by Abort")
	}

	// the stale tail of the aborted line resynchronizes as garbage
	mem.InjectString("E\r\n*DR=01z\r\n")
	d.Poll()
	wantKinds := []protocol.ResponseKind{protocol.KindParseError, protocol.KindDataReceived}
	if len(d.Events()) != len(wantKinds) {
		t.Fatalf("len(Events()) = %d, want %d", len(d.Events()), len(wantKinds))
	}
	for i, want := range wantKinds {
		if ev := <-d.Events(); ev.Kind != want {
			t.Errorf("event %d = %v, want %v", i, ev.Kind, want)
		}
	}
}

func TestDispatcher_MaxBytesPerPoll(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{MaxBytesPerPoll: 4})
	mem.InjectString("*DR=01a\r\n")

	if n := d.Poll(); n != 4 {
		t.Errorf("Poll() = %d, want 4", n)
	}
	for mem.Pending() > 0 {
		d.Poll()
	}
	if len(d.Events()) != 1 {
		t.Errorf("len(Events()) = %d, want 1", len(d.Events()))
	}
}

func TestDispatcher_BinaryModeRejectsCommands(t *testing.T) {
	d, mem, _ := newTestDispatcher(Options{Mode: protocol.FskBin})
	if _, st := d.Issue(Request{Command: cmd("@CH\r\n"), Expect: protocol.KindChannel}); st != protocol.InvalidArg {
		t.Errorf("Issue() in FskBin = %v, want InvalidArg", st)
	}

	// [size][address][payload][rssi] for the 429MHz layout
	mem.Inject([]byte{0x02, 0x7F, 'h', 'i', 0x50})
	d.Poll()
	select {
	case ev := <-d.Events():
		if string(ev.Frame.Payload) != "hi" || ev.Frame.RSSI != -0x50 {
			t.Errorf("binary frame = %v, want payload hi rssi -80", ev.Frame)
		}
	default:
		t.Fatal("binary frame not delivered")
	}
}

func TestCompletion_ResolvesOnce(t *testing.T) {
	c := newCompletion()
	if c.Ready() {
		t.Fatal("new completion is ready")
	}
	if !c.resolve(Result{Err: protocol.Fail}) {
		t.Error("first resolve() = false, want true")
	}
	if c.resolve(Result{Err: protocol.Ok}) {
		t.Error("second resolve() = true, want false")
	}
	if c.Result().Err != protocol.Fail {
		t.Errorf("Result().Err = %v, want Fail", c.Result().Err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed")
	}
}
