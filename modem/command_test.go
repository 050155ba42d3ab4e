package modem

import (
	"testing"
)

func TestCommandWireForms(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		wire string
	}{
		{"connect", cmdConnect(2, "TCP", "127.0.0.1", "8080"), "AT+CIPSTART=2,\"TCP\",\"127.0.0.1\",\"8080\"\r"},
		{"attach", cmdAttach(true), "AT+CGATT=1\r"},
		{"detach", cmdAttach(false), "AT+CGATT=0\r"},
		{"request data", cmdRequestData(5, 16), "AT+CIPRXGET=2,5,16\r"},
		{"send", cmdSend(2, make([]byte, 10)), "AT+CIPSEND=2,10\r"},
		{"close", cmdCloseConnection(2), "AT+CIPCLOSE=2\r"},
		{"status", cmdConnectionStatus(3), "AT+CIPSTATUS=3\r"},
		{"resolve", cmdResolveHost("www.google.com"), "AT+CDNSGIP=\"www.google.com\"\r"},
		{"define pdp", cmdDefinePdpContext(1, "internet"), "AT+CGDCONT=1,\"IP\",\"internet\"\r"},
		{"start task", cmdStartTask("internet", "user", "pass"), "AT+CSTT=\"internet\",\"user\",\"pass\"\r"},
		{"pdp activate", cmdPdpSet(1, true), "AT+CGACT=1,1\r"},
		{"pdp deactivate", cmdPdpSet(1, false), "AT+CGACT=0,1\r"},
		{"enter pin", cmdEnterPin("1234"), "AT+CPIN=\"1234\"\r"},
		{"flow control on", cmdFlowControl(FlowControlRtsCts), "AT+IFC=2,2\r"},
		{"flow control off", cmdFlowControl(FlowControlNone), "AT+IFC=0,0\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.cmd.wire); got != tt.wire {
				t.Errorf("wire = %q, want %q", got, tt.wire)
			}
		})
	}

	send := cmdSend(0, []byte("hello"))
	if !send.expectPrompt {
		t.Error("AT+CIPSEND must expect the data prompt")
	}
	if string(send.payload) != "hello" {
		t.Errorf("payload = %q, want it carried with the command", send.payload)
	}
}

func TestParseSignalQuality(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		dbm     int
		unknown bool
	}{
		{"floor", "+CSQ: 0,0", -115, false},
		{"one", "+CSQ: 1,0", -111, false},
		{"two", "+CSQ: 2,0", -110, false},
		{"mid", "+CSQ: 15,99", -84, false},
		{"ceiling", "+CSQ: 31,0", -52, false},
		{"unknown", "+CSQ: 99,99", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := parseSignalQuality([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.unknown {
				if q.RssiDbm != nil {
					t.Errorf("RssiDbm = %d, want unknown", *q.RssiDbm)
				}
				return
			}
			if q.RssiDbm == nil {
				t.Fatal("RssiDbm unexpectedly unknown")
			}
			if *q.RssiDbm != tt.dbm {
				t.Errorf("RssiDbm = %d, want %d", *q.RssiDbm, tt.dbm)
			}
		})
	}

	if _, err := parseSignalQuality([]byte("garbage")); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestParseRegistration(t *testing.T) {
	tests := []struct {
		payload    string
		registered bool
	}{
		{"+CREG: 0,1", true},
		{"+CREG: 0,5", true},
		{"+CREG: 0,2", false},
		{"+CREG: 0,0", false},
	}
	for _, tt := range tests {
		got, err := parseRegistration([]byte(tt.payload), "+CREG: ")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.payload, err)
		}
		if got != tt.registered {
			t.Errorf("parseRegistration(%q) = %v, want %v", tt.payload, got, tt.registered)
		}
	}
}

func TestParseAttached(t *testing.T) {
	attached, err := parseAttached([]byte("+CGATT: 1"))
	if err != nil || !attached {
		t.Errorf("got (%v, %v), want attached", attached, err)
	}
	attached, err = parseAttached([]byte("+CGATT: 0"))
	if err != nil || attached {
		t.Errorf("got (%v, %v), want detached", attached, err)
	}
}

func TestParseClientState(t *testing.T) {
	tests := []struct {
		payload string
		state   ClientState
	}{
		{`+CIPSTATUS: 0,,"","","","INITIAL"`, StateInitial},
		{`+CIPSTATUS: 2,0,"TCP","1.2.3.4","80","CONNECTED"`, StateConnected},
		{`+CIPSTATUS: 1,0,"TCP","1.2.3.4","80","REMOTE CLOSING"`, StateRemoteClosing},
		{`+CIPSTATUS: 5,,"","","","CLOSED"`, StateClosed},
	}
	for _, tt := range tests {
		got, err := parseClientState([]byte(tt.payload))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tt.payload, err)
		}
		if got != tt.state {
			t.Errorf("parseClientState(%q) = %v, want %v", tt.payload, got, tt.state)
		}
	}

	if _, err := parseClientState([]byte(`+CIPSTATUS: 0,,"","","","LIMBO"`)); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestParseOperatorMode(t *testing.T) {
	mode, err := parseOperatorMode([]byte(`+COPS: 0,0,"vodafone"`))
	if err != nil || mode != 0 {
		t.Errorf("got (%d, %v), want mode 0", mode, err)
	}
	mode, err = parseOperatorMode([]byte("+COPS: 1"))
	if err != nil || mode != 1 {
		t.Errorf("got (%d, %v), want mode 1", mode, err)
	}
}
