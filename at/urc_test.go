package at

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Urc
	}{
		{"call ready", "Call Ready", CallReady{}},
		{"sms ready", "SMS Ready", SmsReady{}},
		{"pin ready", "+CPIN: READY", PinStatus{Code: PinReady}},
		{"pin sim pin", "+CPIN: SIM PIN", PinStatus{Code: PinSimPin}},
		{"connect ok", "2, CONNECT OK", ConnectOk{ID: 2}},
		{"connect fail", "0, CONNECT FAIL", ConnectFail{ID: 0}},
		{"already connect", "1, ALREADY CONNECT", AlreadyConnect{ID: 1}},
		{"send ok", "4, SEND OK", SendOk{ID: 4}},
		{"closed", "3, CLOSED", Closed{ID: 3}},
		{"pdp deact", "+PDP: DEACT", PdpDeact{}},
		{"pdp deactivated", "+CGACT: 1,0", PdpState{CID: 1, Activated: false}},
		{"pdp activated", "+CGACT: 1,1", PdpState{CID: 1, Activated: true}},
		{"data available", "+CIPRXGET: 1,2", DataAvailable{ID: 2}},
		{"data available no space", "+CIPRXGET:1,2", DataAvailable{ID: 2}},
		{
			"read data",
			"+CIPRXGET: 2,5,8,2\r\nHTTP\r\n\r\n",
			ReadData{ID: 5, PendingLen: 2, Data: []byte("HTTP\r\n\r\n")},
		},
		{
			"read data empty",
			"+CIPRXGET: 2,5,0,0\r\n",
			ReadData{ID: 5, PendingLen: 0, Data: []byte{}},
		},
		{
			"dns ok",
			`+CDNSGIP: 1,"www.google.com","172.217.18.100"`,
			DnsOk{Host: "www.google.com", IP: "172.217.18.100"},
		},
		{
			"dns ok dual",
			`+CDNSGIP: 1,"example.org","1.2.3.4","5.6.7.8"`,
			DnsOk{Host: "example.org", IP: "1.2.3.4", AltIP: "5.6.7.8"},
		},
		{"dns fail", "+CDNSGIP: 0,8", DnsFail{Code: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify([]byte(tt.payload))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %#v, want %#v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	// Frames the digester consumes but the driver tracks no state for.
	payloads := []string{
		"DATA ACCEPT: 2,10",
		"+RECEIVE,2,1234:",
		"+CGACT: 1,7",
		"+CPIN: NOT A CODE",
		"2, SOMETHING ELSE",
		"",
	}
	for _, p := range payloads {
		if got := Classify([]byte(p)); got != nil {
			t.Errorf("Classify(%q) = %#v, want nil", p, got)
		}
	}
}

func TestPinStatusRoundTrip(t *testing.T) {
	for name, code := range pinStatusNames {
		if got := ParsePinStatus(name); got != code {
			t.Errorf("ParsePinStatus(%q) = %v, want %v", name, got, code)
		}
		if got := code.String(); got != name {
			t.Errorf("%v.String() = %q, want %q", code, got, name)
		}
	}
	if got := ParsePinStatus("NOPE"); got != PinStatusUnknown {
		t.Errorf("ParsePinStatus(NOPE) = %v", got)
	}
}
