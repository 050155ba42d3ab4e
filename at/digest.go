package at

import (
	"bytes"
	"errors"
	"fmt"
)

// Kind identifies what the digester recognized at the head of the
// ingress buffer.
type Kind int

const (
	// KindNone means no complete frame is buffered yet.
	KindNone Kind = iota
	// KindResponse is a final reply to the in-flight command. The
	// Outcome carries either the payload or a typed error.
	KindResponse
	// KindPrompt is the "> " data prompt following AT+CIPSEND.
	KindPrompt
	// KindUrc is an unsolicited result code frame, to be decoded
	// by Classify.
	KindUrc
)

// Outcome is the result of digesting the buffer prefix.
type Outcome struct {
	Kind    Kind
	Payload []byte
	// Err is set for KindResponse when the modem reported a failure
	// (ERROR, +CME ERROR, "<id>, SEND FAIL").
	Err error
}

// ErrModemError is the bare ERROR final result code.
var ErrModemError = errors.New("modem error")

// CMEError is a numeric mobile-equipment error code (+CME ERROR: <n>).
type CMEError uint16

func (e CMEError) Error() string {
	return fmt.Sprintf("CME ERROR %d", uint16(e))
}

// CMSError is a numeric message-service error code (+CMS ERROR: <n>).
type CMSError uint16

func (e CMSError) Error() string {
	return fmt.Sprintf("CMS ERROR %d", uint16(e))
}

// SendFailError is the "<id>, SEND FAIL" custom final result code.
type SendFailError struct {
	ID int
}

func (e *SendFailError) Error() string {
	return fmt.Sprintf("%d, SEND FAIL", e.ID)
}

// Matcher control-flow sentinels. errMore means the buffer holds a
// strict prefix of this frame kind; errNoMatch means this frame kind
// can be ruled out.
var (
	errMore    = errors.New("need more data")
	errNoMatch = errors.New("no match")
)

// Digest scans the buffer prefix for one complete frame. It returns
// the recognized outcome and the number of bytes consumed, or
// (Outcome{Kind: KindNone}, 0) when more bytes are required.
//
// Recognizers are tried in a fixed priority order: the SIMCOM custom
// final result codes first (they would otherwise be mis-segmented by
// the generic grammar), then the URC grammars, the prompt, and the
// generic OK/ERROR grammars last. Like the streaming combinators they
// are modeled on, a recognizer that is a plausible prefix stops the
// scan until more bytes arrive.
func Digest(buf []byte) (Outcome, int) {
	if len(buf) == 0 {
		return Outcome{}, 0
	}
	for _, match := range matchers {
		out, n, err := match(buf)
		switch err {
		case nil:
			return out, n
		case errMore:
			return Outcome{}, 0
		}
	}
	// Nothing can be ruled in or out; wait for more bytes. The pump
	// clears the buffer if it fills without progress.
	return Outcome{}, 0
}

type matcher func(buf []byte) (Outcome, int, error)

var matchers = []matcher{
	matchCustomSuccess,
	matchCustomError,
	matchPdpState,
	matchConnectionStatus,
	matchDataAccept,
	matchDataAvailable,
	matchReadData,
	matchReceive,
	lineUrc("Call Ready"),
	lineUrc("SMS Ready"),
	lineUrc("+PDP: DEACT"),
	lineUrc("+CPIN"),
	lineUrc("+CGACT"),
	lineUrc("+CDNSGIP"),
	matchPrompt,
	matchBareIP,
	matchGenericError,
	matchGenericSuccess,
}

// matchCustomSuccess recognizes "\r\nSHUT OK\r\n" and
// "\r\n<id>, CLOSE OK\r\n".
func matchCustomSuccess(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF + ShutOk + CRLF); err == nil {
		return Outcome{Kind: KindResponse, Payload: []byte{}}, s.pos, nil
	} else if err == errMore {
		return Outcome{}, 0, errMore
	}

	s = newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(CloseOk); err != nil {
		return Outcome{}, 0, err
	}
	end := s.pos
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindResponse, Payload: buf[start:end]}, s.pos, nil
}

// matchCustomError recognizes "\r\n<id>, SEND FAIL\r\n".
func matchCustomError(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	id, err := s.u8()
	if err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(SendFail); err != nil {
		return Outcome{}, 0, err
	}
	end := s.pos
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	out := Outcome{
		Kind:    KindResponse,
		Payload: buf[start:end],
		Err:     &SendFailError{ID: int(id)},
	}
	return out, s.pos, nil
}

// matchPdpState recognizes "\r\n+CGACT: <cid>,<state>". The frame ends
// after the state digit; the trailing CRLF belongs to the next frame.
func matchPdpState(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if err := s.tag("+CGACT: "); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(","); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindUrc, Payload: buf[start:s.pos]}, s.pos, nil
}

var connectionStatuses = []string{
	"CONNECT OK",
	"CONNECT FAIL",
	"ALREADY CONNECT",
	"SEND OK",
	"CLOSED",
}

// matchConnectionStatus recognizes "\r\n<id>, <status>\r\n" for the
// per-socket connection status lines.
func matchConnectionStatus(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(", "); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.alt(connectionStatuses); err != nil {
		return Outcome{}, 0, err
	}
	end := s.pos
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindUrc, Payload: buf[start:end]}, s.pos, nil
}

// matchDataAccept recognizes "\r\nDATA ACCEPT:[ ]<id>,<len>\r\n".
// The SIM800 prints a space after the colon, the SIM900 does not.
func matchDataAccept(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if err := s.tag("DATA ACCEPT:"); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.opt(" "); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(","); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u16(); err != nil {
		return Outcome{}, 0, err
	}
	end := s.pos
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindUrc, Payload: buf[start:end]}, s.pos, nil
}

// matchDataAvailable recognizes "\r\n+CIPRXGET:[ ]1,<id>\r\n".
func matchDataAvailable(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if err := s.tag("+CIPRXGET:"); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.opt(" "); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag("1,"); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	end := s.pos
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindUrc, Payload: buf[start:end]}, s.pos, nil
}

// matchReadData recognizes "\r\n+CIPRXGET:[ ]2,<id>,<len>,<pending>\r\n"
// followed by exactly <len> raw bytes. The raw block is part of the
// frame payload; it is not text-safe and carries no trailing delimiter.
// <len> may be zero.
func matchReadData(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if err := s.tag("+CIPRXGET:"); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.opt(" "); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag("2,"); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(","); err != nil {
		return Outcome{}, 0, err
	}
	dataLen, err := s.u16()
	if err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(","); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u16(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.take(int(dataLen)); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindUrc, Payload: buf[start:s.pos]}, s.pos, nil
}

// matchReceive recognizes "\r\n+RECEIVE,<id>,<len>:\r\n".
func matchReceive(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	if err := s.tag("+RECEIVE,"); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u8(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(","); err != nil {
		return Outcome{}, 0, err
	}
	if _, err := s.u16(); err != nil {
		return Outcome{}, 0, err
	}
	if err := s.tag(":"); err != nil {
		return Outcome{}, 0, err
	}
	end := s.pos
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindUrc, Payload: buf[start:end]}, s.pos, nil
}

// lineUrc builds a matcher for "\r\n<prefix>...\r\n" single-line URCs.
func lineUrc(prefix string) matcher {
	return func(buf []byte) (Outcome, int, error) {
		s := newScanner(buf)
		if err := s.tag(CRLF); err != nil {
			return Outcome{}, 0, err
		}
		start := s.pos
		if err := s.tag(prefix); err != nil {
			return Outcome{}, 0, err
		}
		rest := buf[s.pos:]
		i := bytes.Index(rest, []byte(CRLF))
		if i < 0 {
			return Outcome{}, 0, errMore
		}
		end := s.pos + i
		return Outcome{Kind: KindUrc, Payload: buf[start:end]}, end + len(CRLF), nil
	}
}

// matchPrompt recognizes the "\r\n> " data prompt as one frame. A bare
// "\r\n>" prefix stays incomplete until the space arrives.
func matchPrompt(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF + Prompt); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindPrompt, Payload: []byte(Prompt)}, s.pos, nil
}

// matchBareIP recognizes "\r\n<a.b.c.d>\r\n". AT+CIFSR replies with the
// local IP and no terminating OK, so this must be treated as a
// complete response frame.
func matchBareIP(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	start := s.pos
	dots := 0
	for {
		b, ok := s.peek()
		if !ok {
			return Outcome{}, 0, errMore
		}
		if b >= '0' && b <= '9' {
			s.pos++
			continue
		}
		if b == '.' {
			dots++
			s.pos++
			continue
		}
		break
	}
	end := s.pos
	if dots != 3 || end == start {
		return Outcome{}, 0, errNoMatch
	}
	if err := s.tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}
	return Outcome{Kind: KindResponse, Payload: buf[start:end]}, s.pos, nil
}

// matchGenericError recognizes the generic error final result codes:
// an optional command echo, a leading CRLF, optional payload lines the
// modem printed before failing, and the error line. The terminator is
// searched forward the way the success grammar searches for its OK
// line; an OK line appearing first means the buffer starts with a
// success frame and is left alone.
func matchGenericError(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.echo(); err != nil {
		return Outcome{}, 0, err
	}
	rest := buf[s.pos:]
	if err := newScanner(rest).tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}

	errIdx := bytes.Index(rest, []byte(CRLF+ERROR+CRLF))
	cmeIdx := bytes.Index(rest, []byte(CRLF+CmeError+" "))
	cmsIdx := bytes.Index(rest, []byte(CRLF+CmsError+" "))
	idx := firstIndex(errIdx, cmeIdx, cmsIdx)
	if idx < 0 {
		return Outcome{}, 0, errNoMatch
	}
	if okIdx := bytes.Index(rest, []byte(CRLF+OK+CRLF)); okIdx >= 0 && okIdx < idx {
		return Outcome{}, 0, errNoMatch
	}

	switch idx {
	case errIdx:
		end := idx + len(CRLF) + len(ERROR) + len(CRLF)
		return Outcome{Kind: KindResponse, Err: ErrModemError}, s.pos + end, nil
	case cmeIdx:
		code, n, err := errorCode(rest[idx+len(CRLF):], CmeError+" ")
		if err != nil {
			return Outcome{}, 0, err
		}
		return Outcome{Kind: KindResponse, Err: CMEError(code)}, s.pos + idx + len(CRLF) + n, nil
	default:
		code, n, err := errorCode(rest[idx+len(CRLF):], CmsError+" ")
		if err != nil {
			return Outcome{}, 0, err
		}
		return Outcome{Kind: KindResponse, Err: CMSError(code)}, s.pos + idx + len(CRLF) + n, nil
	}
}

// errorCode parses "<prefix><code>\r\n" and reports the bytes consumed.
func errorCode(buf []byte, prefix string) (uint16, int, error) {
	s := newScanner(buf)
	if err := s.tag(prefix); err != nil {
		return 0, 0, err
	}
	code, err := s.u16()
	if err != nil {
		return 0, 0, err
	}
	if err := s.tag(CRLF); err != nil {
		return 0, 0, err
	}
	return code, s.pos, nil
}

// firstIndex is the smallest non-negative index, or -1.
func firstIndex(idxs ...int) int {
	best := -1
	for _, i := range idxs {
		if i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// matchGenericSuccess recognizes the generic success grammar: an
// optional command echo, a leading CRLF, payload bytes, and a
// terminating OK line. The payload excludes the delimiters.
func matchGenericSuccess(buf []byte) (Outcome, int, error) {
	s := newScanner(buf)
	if err := s.echo(); err != nil {
		return Outcome{}, 0, err
	}
	rest := buf[s.pos:]
	if err := newScanner(rest).tag(CRLF); err != nil {
		return Outcome{}, 0, err
	}

	terminator := []byte(CRLF + OK + CRLF)
	if bytes.HasPrefix(rest[2:], []byte(OK+CRLF)) {
		// Bare "\r\nOK\r\n" with no payload.
		return Outcome{Kind: KindResponse, Payload: []byte{}}, s.pos + 2 + len(OK) + 2, nil
	}
	i := bytes.Index(rest, terminator)
	if i < 0 {
		return Outcome{}, 0, errMore
	}
	payload := rest[len(CRLF):i]
	payload = bytes.TrimSuffix(payload, []byte(CRLF))
	return Outcome{Kind: KindResponse, Payload: payload}, s.pos + i + len(terminator), nil
}

// scanner is a small streaming cursor over the ingress buffer. In
// streaming mode, running out of bytes mid-token yields errMore; in
// complete mode (used by the URC classifier on already-delimited
// frames) the end of the buffer is a definite end of input.
type scanner struct {
	buf      []byte
	pos      int
	complete bool
}

func newScanner(buf []byte) *scanner {
	return &scanner{buf: buf}
}

func newCompleteScanner(buf []byte) *scanner {
	return &scanner{buf: buf, complete: true}
}

func (s *scanner) rest() []byte {
	return s.buf[s.pos:]
}

func (s *scanner) peek() (byte, bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	return s.buf[s.pos], true
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.buf)
}

// tag consumes the literal t. A partial match at the end of the buffer
// is errMore unless the scanner is in complete mode.
func (s *scanner) tag(t string) error {
	r := s.rest()
	if len(r) < len(t) {
		if !s.complete && bytes.HasPrefix([]byte(t), r) {
			return errMore
		}
		return errNoMatch
	}
	if !bytes.HasPrefix(r, []byte(t)) {
		return errNoMatch
	}
	s.pos += len(t)
	return nil
}

// opt consumes the literal if present. Running out of bytes while the
// literal is still possible is errMore in streaming mode.
func (s *scanner) opt(t string) error {
	err := s.tag(t)
	if err == errMore {
		return errMore
	}
	return nil
}

// alt consumes the first matching literal. errMore wins over errNoMatch
// so a partially buffered alternative keeps the frame pending.
func (s *scanner) alt(ts []string) error {
	more := false
	for _, t := range ts {
		switch err := s.tag(t); err {
		case nil:
			return nil
		case errMore:
			more = true
		}
	}
	if more {
		return errMore
	}
	return errNoMatch
}

// u8 consumes a decimal integer in u8 range. Out-of-range fails the
// matcher rather than panicking.
func (s *scanner) u8() (uint8, error) {
	v, err := s.uint(255)
	return uint8(v), err
}

// u16 consumes a decimal integer in u16 range.
func (s *scanner) u16() (uint16, error) {
	v, err := s.uint(65535)
	return uint16(v), err
}

func (s *scanner) uint(max uint32) (uint32, error) {
	var v uint32
	digits := 0
	for {
		b, ok := s.peek()
		if !ok {
			if !s.complete {
				// More digits may follow.
				return 0, errMore
			}
			break
		}
		if b < '0' || b > '9' {
			break
		}
		v = v*10 + uint32(b-'0')
		if v > max {
			return 0, errNoMatch
		}
		s.pos++
		digits++
	}
	if digits == 0 {
		return 0, errNoMatch
	}
	return v, nil
}

// take consumes exactly n raw bytes, regardless of content.
func (s *scanner) take(n int) ([]byte, error) {
	r := s.rest()
	if len(r) < n {
		if s.complete {
			return nil, errNoMatch
		}
		return nil, errMore
	}
	b := r[:n]
	s.pos += n
	return b, nil
}

// echo consumes an echoed command ("AT...\r") if one leads the buffer.
// Echo is disabled during setup, but the very first responses arrive
// before ATE0 takes effect.
func (s *scanner) echo() error {
	r := s.rest()
	if !bytes.HasPrefix(r, []byte("AT")) {
		if len(r) < 2 && bytes.HasPrefix([]byte("AT"), r) {
			return errMore
		}
		return nil
	}
	i := bytes.IndexByte(r, '\r')
	if i < 0 {
		return errMore
	}
	s.pos += i + 1
	return nil
}

// quoted consumes a double-quoted string and returns its contents.
func (s *scanner) quoted() (string, error) {
	if err := s.tag(`"`); err != nil {
		return "", err
	}
	r := s.rest()
	i := bytes.IndexByte(r, '"')
	if i < 0 {
		if s.complete {
			return "", errNoMatch
		}
		return "", errMore
	}
	v := string(r[:i])
	s.pos += i + 1
	return v, nil
}
