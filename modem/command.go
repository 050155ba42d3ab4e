package modem

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command is a single AT request: its wire form and how its response
// terminates. The event loop treats every command the same way; the
// differences live in these fields.
type Command struct {
	// name identifies the command in logs and wrapped errors.
	name string
	// wire is the exact byte sequence written to the transport,
	// including the trailing \r for framed commands.
	wire []byte
	// timeout is the response budget. Zero means Config.ATTimeout.
	timeout time.Duration
	// expectPrompt marks commands answered by the "> " data prompt
	// instead of a final result code.
	expectPrompt bool
	// payload is written verbatim once the data prompt arrives, within
	// the same loop transaction as the command itself. It gets no final
	// result code; the modem acknowledges it later with a SEND OK URC.
	payload []byte
}

func framed(name, body string, timeout time.Duration) Command {
	return Command{name: name, wire: []byte(body + "\r"), timeout: timeout}
}

// Vendor-documented worst-case response times. The TCP/IP commands can
// stall for the duration of a radio-level retransmission cycle.
const (
	connectTimeout  = 75 * time.Second
	shutTimeout     = 65 * time.Second
	bringUpTimeout  = 85 * time.Second
	attachTimeout   = 10 * time.Second
	sendTimeout     = 645 * time.Second
	closeTimeout    = 10 * time.Second
	readTimeout     = 10 * time.Second
	operatorTimeout = 120 * time.Second
	pdpTimeout      = 150 * time.Second
)

func cmdAT() Command               { return framed("AT", "AT", time.Second) }
func cmdFactoryDefaults() Command  { return framed("AT&F", "AT&F", 0) }
func cmdReset() Command            { return framed("ATZ", "ATZ", 0) }
func cmdEchoOff() Command          { return framed("ATE0", "ATE0", 0) }
func cmdNumericErrors() Command    { return framed("AT+CMEE", "AT+CMEE=1", 0) }
func cmdManufacturer() Command     { return framed("AT+CGMI", "AT+CGMI", 0) }
func cmdModel() Command            { return framed("AT+CGMM", "AT+CGMM", 0) }
func cmdCallReady() Command        { return framed("AT+CCALR?", "AT+CCALR?", 0) }
func cmdPinStatus() Command        { return framed("AT+CPIN?", "AT+CPIN?", 0) }
func cmdSignalQuality() Command    { return framed("AT+CSQ", "AT+CSQ", 0) }
func cmdOperatorQuery() Command    { return framed("AT+COPS?", "AT+COPS?", 0) }
func cmdGsmRegistration() Command  { return framed("AT+CREG?", "AT+CREG?", 0) }
func cmdGprsRegistration() Command { return framed("AT+CGREG?", "AT+CGREG?", 0) }
func cmdAttachQuery() Command      { return framed("AT+CGATT?", "AT+CGATT?", 0) }
func cmdPdpQuery() Command         { return framed("AT+CGACT?", "AT+CGACT?", 0) }
func cmdShut() Command             { return framed("AT+CIPSHUT", "AT+CIPSHUT", shutTimeout) }
func cmdManualRxMode() Command     { return framed("AT+CIPRXGET", "AT+CIPRXGET=1", 0) }
func cmdMultiplex() Command        { return framed("AT+CIPMUX", "AT+CIPMUX=1", 0) }
func cmdBringUp() Command          { return framed("AT+CIICR", "AT+CIICR", bringUpTimeout) }
func cmdLocalIP() Command          { return framed("AT+CIFSR", "AT+CIFSR", 0) }

func cmdFlowControl(fc FlowControl) Command {
	body := "AT+IFC=0,0"
	if fc == FlowControlRtsCts {
		body = "AT+IFC=2,2"
	}
	return framed("AT+IFC", body, 0)
}

func cmdEnterPin(pin string) Command {
	return framed("AT+CPIN", fmt.Sprintf("AT+CPIN=%q", pin), 0)
}

func cmdOperatorAutomatic() Command {
	return framed("AT+COPS", "AT+COPS=0", operatorTimeout)
}

func cmdAttach(attached bool) Command {
	state := 0
	if attached {
		state = 1
	}
	return framed("AT+CGATT", fmt.Sprintf("AT+CGATT=%d", state), attachTimeout)
}

func cmdPdpSet(cid int, active bool) Command {
	state := 0
	if active {
		state = 1
	}
	return framed("AT+CGACT", fmt.Sprintf("AT+CGACT=%d,%d", state, cid), pdpTimeout)
}

func cmdDefinePdpContext(cid int, apn string) Command {
	return framed("AT+CGDCONT", fmt.Sprintf("AT+CGDCONT=%d,%q,%q", cid, "IP", apn), 0)
}

func cmdStartTask(apn, user, pass string) Command {
	return framed("AT+CSTT", fmt.Sprintf("AT+CSTT=%q,%q,%q", apn, user, pass), 0)
}

func cmdDnsConfig(primary, secondary string) Command {
	return framed("AT+CDNSCFG", fmt.Sprintf("AT+CDNSCFG=%q,%q", primary, secondary), 0)
}

func cmdResolveHost(host string) Command {
	return framed("AT+CDNSGIP", fmt.Sprintf("AT+CDNSGIP=%q", host), 0)
}

func cmdConnect(id int, proto, host, port string) Command {
	body := fmt.Sprintf("AT+CIPSTART=%d,%q,%q,%q", id, proto, host, port)
	return framed("AT+CIPSTART", body, connectTimeout)
}

func cmdConnectionStatus(id int) Command {
	return framed("AT+CIPSTATUS", fmt.Sprintf("AT+CIPSTATUS=%d", id), 0)
}

func cmdRequestData(id, length int) Command {
	return framed("AT+CIPRXGET", fmt.Sprintf("AT+CIPRXGET=2,%d,%d", id, length), readTimeout)
}

func cmdSend(id int, data []byte) Command {
	c := framed("AT+CIPSEND", fmt.Sprintf("AT+CIPSEND=%d,%d", id, len(data)), sendTimeout)
	c.expectPrompt = true
	c.payload = data
	return c
}

func cmdCloseConnection(id int) Command {
	return framed("AT+CIPCLOSE", fmt.Sprintf("AT+CIPCLOSE=%d", id), closeTimeout)
}

// SignalQuality is the decoded AT+CSQ report.
type SignalQuality struct {
	// RssiDbm is the received signal strength in dBm. Nil when the
	// modem reports 99 (not known or not detectable).
	RssiDbm *int
	// Ber is the raw bit error rate index (99 = unknown).
	Ber uint8
}

func parseSignalQuality(payload []byte) (SignalQuality, error) {
	var rssi, ber uint8
	if err := scanFields(payload, "+CSQ: ", &rssi, &ber); err != nil {
		return SignalQuality{}, err
	}
	q := SignalQuality{Ber: ber}
	switch {
	case rssi == 0:
		q.RssiDbm = ptr(-115)
	case rssi == 1:
		q.RssiDbm = ptr(-111)
	case rssi >= 2 && rssi <= 32:
		q.RssiDbm = ptr(-110 + 2*(int(rssi)-2))
	}
	return q, nil
}

func ptr[T any](v T) *T { return &v }

func parseCallReady(payload []byte) (bool, error) {
	var ready uint8
	if err := scanFields(payload, "+CCALR: ", &ready); err != nil {
		return false, err
	}
	return ready == 1, nil
}

// parseRegistration reads "+CREG: <n>,<stat>" (also +CGREG). Stat 1 is
// registered on the home network, 5 registered roaming.
func parseRegistration(payload []byte, prefix string) (bool, error) {
	var mode, stat uint8
	if err := scanFields(payload, prefix, &mode, &stat); err != nil {
		return false, err
	}
	return stat == 1 || stat == 5, nil
}

func parseAttached(payload []byte) (bool, error) {
	var state uint8
	if err := scanFields(payload, "+CGATT: ", &state); err != nil {
		return false, err
	}
	return state == 1, nil
}

// parseOperatorMode reads the selection mode from "+COPS: <mode>[,...]".
func parseOperatorMode(payload []byte) (uint8, error) {
	rest, ok := strings.CutPrefix(string(payload), "+COPS: ")
	if !ok {
		return 0, fmt.Errorf("malformed +COPS response: %q", payload)
	}
	field, _, _ := strings.Cut(rest, ",")
	mode, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("malformed +COPS mode: %q", payload)
	}
	return uint8(mode), nil
}

// ClientState is one socket's state as reported by AT+CIPSTATUS=<id>.
type ClientState int

const (
	StateUnknown ClientState = iota
	StateInitial
	StateConnecting
	StateConnected
	StateRemoteClosing
	StateClosing
	StateClosed
)

var clientStateNames = map[string]ClientState{
	"INITIAL":        StateInitial,
	"CONNECTING":     StateConnecting,
	"CONNECTED":      StateConnected,
	"REMOTE CLOSING": StateRemoteClosing,
	"CLOSING":        StateClosing,
	"CLOSED":         StateClosed,
}

// parseClientState reads the state field of
// `+CIPSTATUS: <id>,<bearer>,<mode>,<ip>,<port>,"<state>"`.
func parseClientState(payload []byte) (ClientState, error) {
	line := string(payload)
	if !strings.HasPrefix(line, "+CIPSTATUS: ") {
		return StateUnknown, fmt.Errorf("malformed +CIPSTATUS response: %q", payload)
	}
	open := strings.LastIndexByte(line, '"')
	if open <= 0 {
		return StateUnknown, fmt.Errorf("malformed +CIPSTATUS response: %q", payload)
	}
	start := strings.LastIndexByte(line[:open], '"')
	if start < 0 {
		return StateUnknown, fmt.Errorf("malformed +CIPSTATUS response: %q", payload)
	}
	state, ok := clientStateNames[line[start+1:open]]
	if !ok {
		return StateUnknown, fmt.Errorf("unknown client state in %q", payload)
	}
	return state, nil
}

// scanFields reads comma-separated u8 fields after a fixed prefix.
func scanFields(payload []byte, prefix string, fields ...*uint8) error {
	rest, ok := strings.CutPrefix(string(payload), prefix)
	if !ok {
		return fmt.Errorf("malformed %s response: %q", strings.TrimSuffix(prefix, ": "), payload)
	}
	parts := strings.Split(rest, ",")
	if len(parts) < len(fields) {
		return fmt.Errorf("malformed %s response: %q", strings.TrimSuffix(prefix, ": "), payload)
	}
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return fmt.Errorf("malformed %s response: %q", strings.TrimSuffix(prefix, ": "), payload)
		}
		*f = uint8(v)
	}
	return nil
}
