package at

import "bytes"

// Urc is a decoded unsolicited result code. The set is closed: the
// digester only emits frames one of the classifiers below can decode,
// plus a handful of informational frames (DATA ACCEPT, +RECEIVE) that
// Classify rejects on purpose.
type Urc interface {
	urc()
}

// CallReady reports that the modem finished its boot sequence.
type CallReady struct{}

// SmsReady reports that the SMS subsystem finished initializing.
type SmsReady struct{}

// PinStatus carries the +CPIN state, both as a URC after boot and as
// the response payload of AT+CPIN?.
type PinStatus struct {
	Code PinStatusCode
}

// ConnectOk reports a successful AT+CIPSTART for one socket.
type ConnectOk struct {
	ID int
}

// ConnectFail reports a failed AT+CIPSTART for one socket.
type ConnectFail struct {
	ID int
}

// AlreadyConnect reports AT+CIPSTART on an already-connected socket.
type AlreadyConnect struct {
	ID int
}

// SendOk reports that a previous AT+CIPSEND payload was accepted.
type SendOk struct {
	ID int
}

// Closed reports that the remote side closed the socket.
type Closed struct {
	ID int
}

// PdpDeact reports that the network deactivated the PDP context.
type PdpDeact struct{}

// PdpState is the +CGACT report for one PDP context.
type PdpState struct {
	CID       uint8
	Activated bool
}

// DnsOk carries a successful AT+CDNSGIP resolution.
type DnsOk struct {
	Host  string
	IP    string
	AltIP string
}

// DnsFail carries the AT+CDNSGIP error code.
type DnsFail struct {
	Code uint8
}

// DataAvailable reports pending receive data on one socket
// (+CIPRXGET mode 1).
type DataAvailable struct {
	ID int
}

// ReadData carries one AT+CIPRXGET=2 data block.
type ReadData struct {
	ID         int
	PendingLen int
	Data       []byte
}

func (CallReady) urc()      {}
func (SmsReady) urc()       {}
func (PinStatus) urc()      {}
func (ConnectOk) urc()      {}
func (ConnectFail) urc()    {}
func (AlreadyConnect) urc() {}
func (SendOk) urc()         {}
func (Closed) urc()         {}
func (PdpDeact) urc()       {}
func (PdpState) urc()       {}
func (DnsOk) urc()          {}
func (DnsFail) urc()        {}
func (DataAvailable) urc()  {}
func (ReadData) urc()       {}

// PinStatusCode is the +CPIN facility lock state.
type PinStatusCode int

const (
	PinStatusUnknown PinStatusCode = iota
	PinReady
	PinSimPin
	PinSimPuk
	PinPhSimPin
	PinPhSimPuk
	PinSimPin2
	PinSimPuk2
)

var pinStatusNames = map[string]PinStatusCode{
	"READY":      PinReady,
	"SIM PIN":    PinSimPin,
	"SIM PUK":    PinSimPuk,
	"PH_SIM PIN": PinPhSimPin,
	"PH_SIM PUK": PinPhSimPuk,
	"SIM PIN2":   PinSimPin2,
	"SIM PUK2":   PinSimPuk2,
}

// ParsePinStatus maps the textual +CPIN code to its enum value.
func ParsePinStatus(s string) PinStatusCode {
	return pinStatusNames[s]
}

func (c PinStatusCode) String() string {
	for name, code := range pinStatusNames {
		if code == c {
			return name
		}
	}
	return "UNKNOWN"
}

// Classify decodes a digested URC frame. It returns nil for frames
// that carry no state the driver tracks; callers log and drop those.
func Classify(payload []byte) Urc {
	for _, c := range classifiers {
		if u := c(payload); u != nil {
			return u
		}
	}
	return nil
}

type classifier func(payload []byte) Urc

var classifiers = []classifier{
	classifyPdpState,
	classifyConnectionStatus,
	classifyDataAvailable,
	classifyReadData,
	classifyDnsFail,
	classifyDnsOk,
	classifyExact("+PDP: DEACT", PdpDeact{}),
	classifyExact("Call Ready", CallReady{}),
	classifyExact("SMS Ready", SmsReady{}),
	classifyPinStatus,
}

func classifyExact(frame string, u Urc) classifier {
	return func(payload []byte) Urc {
		if string(payload) == frame {
			return u
		}
		return nil
	}
}

func classifyPdpState(payload []byte) Urc {
	s := newCompleteScanner(payload)
	if err := s.tag("+CGACT: "); err != nil {
		return nil
	}
	cid, err := s.u8()
	if err != nil {
		return nil
	}
	if err := s.tag(","); err != nil {
		return nil
	}
	state, err := s.u8()
	if err != nil || state > 1 || !s.eof() {
		return nil
	}
	return PdpState{CID: cid, Activated: state == 1}
}

func classifyConnectionStatus(payload []byte) Urc {
	s := newCompleteScanner(payload)
	id, err := s.u8()
	if err != nil {
		return nil
	}
	if err := s.tag(", "); err != nil {
		return nil
	}
	status := string(s.rest())
	switch status {
	case "CONNECT OK":
		return ConnectOk{ID: int(id)}
	case "CONNECT FAIL":
		return ConnectFail{ID: int(id)}
	case "ALREADY CONNECT":
		return AlreadyConnect{ID: int(id)}
	case "SEND OK":
		return SendOk{ID: int(id)}
	case "CLOSED":
		return Closed{ID: int(id)}
	}
	return nil
}

func classifyDataAvailable(payload []byte) Urc {
	s := newCompleteScanner(payload)
	if err := s.tag("+CIPRXGET:"); err != nil {
		return nil
	}
	s.opt(" ")
	if err := s.tag("1,"); err != nil {
		return nil
	}
	id, err := s.u8()
	if err != nil || !s.eof() {
		return nil
	}
	return DataAvailable{ID: int(id)}
}

func classifyReadData(payload []byte) Urc {
	s := newCompleteScanner(payload)
	if err := s.tag("+CIPRXGET:"); err != nil {
		return nil
	}
	s.opt(" ")
	if err := s.tag("2,"); err != nil {
		return nil
	}
	id, err := s.u8()
	if err != nil {
		return nil
	}
	if err := s.tag(","); err != nil {
		return nil
	}
	dataLen, err := s.u16()
	if err != nil {
		return nil
	}
	if err := s.tag(","); err != nil {
		return nil
	}
	pending, err := s.u16()
	if err != nil {
		return nil
	}
	if err := s.tag(CRLF); err != nil {
		return nil
	}
	data, err := s.take(int(dataLen))
	if err != nil || !s.eof() {
		return nil
	}
	return ReadData{
		ID:         int(id),
		PendingLen: int(pending),
		Data:       bytes.Clone(data),
	}
}

func classifyDnsFail(payload []byte) Urc {
	s := newCompleteScanner(payload)
	if err := s.tag("+CDNSGIP: 0,"); err != nil {
		return nil
	}
	code, err := s.u8()
	if err != nil || !s.eof() {
		return nil
	}
	return DnsFail{Code: code}
}

func classifyDnsOk(payload []byte) Urc {
	s := newCompleteScanner(payload)
	if err := s.tag("+CDNSGIP: 1,"); err != nil {
		return nil
	}
	host, err := s.quoted()
	if err != nil {
		return nil
	}
	if err := s.tag(","); err != nil {
		return nil
	}
	ip, err := s.quoted()
	if err != nil {
		return nil
	}
	u := DnsOk{Host: host, IP: ip}
	if s.eof() {
		return u
	}
	if err := s.tag(","); err != nil {
		return nil
	}
	alt, err := s.quoted()
	if err != nil || !s.eof() {
		return nil
	}
	u.AltIP = alt
	return u
}

func classifyPinStatus(payload []byte) Urc {
	s := newCompleteScanner(payload)
	if err := s.tag("+CPIN: "); err != nil {
		return nil
	}
	code := ParsePinStatus(string(s.rest()))
	if code == PinStatusUnknown {
		return nil
	}
	return PinStatus{Code: code}
}
