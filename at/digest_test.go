package at

import (
	"bytes"
	"errors"
	"testing"
)

func TestDigestIncomplete(t *testing.T) {
	prefixes := []string{
		"",
		"\r",
		"\r\n",
		"\r\nS",
		"\r\nSHUT OK",
		"\r\n2, CLO",
		"\r\n2, CONNECT OK",
		"\r\n+CGACT: 1,0",
		"\r\n+CIPRXGET: 2,5,8,0\r\nHTTP",
		"\r\n>",
		"\r\nOK\r",
		"AT+CGMI",
		"AT+CGMI\r\r\nSIMCOM_Ltd\r\n",
		"\r\n+CME ERROR: 1",
		"\r\n+XYZ: 1\r\n\r\nERRO",
	}
	for _, p := range prefixes {
		t.Run(p, func(t *testing.T) {
			out, n := Digest([]byte(p))
			if out.Kind != KindNone || n != 0 {
				t.Errorf("Digest(%q) = (%v, %d), want (KindNone, 0)", p, out.Kind, n)
			}
		})
	}
}

func TestDigestCustomResults(t *testing.T) {
	t.Run("shut ok", func(t *testing.T) {
		out, n := Digest([]byte("\r\nSHUT OK\r\n"))
		if out.Kind != KindResponse || out.Err != nil || len(out.Payload) != 0 || n != 11 {
			t.Errorf("got (%v, %q, %v, %d)", out.Kind, out.Payload, out.Err, n)
		}
	})

	t.Run("close ok", func(t *testing.T) {
		out, n := Digest([]byte("\r\n2, CLOSE OK\r\n"))
		if out.Kind != KindResponse || out.Err != nil || n != 15 {
			t.Fatalf("got (%v, %v, %d)", out.Kind, out.Err, n)
		}
		if string(out.Payload) != "2, CLOSE OK" {
			t.Errorf("payload = %q", out.Payload)
		}
	})

	t.Run("send fail", func(t *testing.T) {
		out, n := Digest([]byte("\r\n2, SEND FAIL\r\n"))
		if out.Kind != KindResponse || n != 16 {
			t.Fatalf("got (%v, %d)", out.Kind, n)
		}
		var sf *SendFailError
		if !errors.As(out.Err, &sf) || sf.ID != 2 {
			t.Errorf("err = %v, want SendFailError{ID: 2}", out.Err)
		}
	})
}

func TestDigestUrcFrames(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		payload string
		n       int
	}{
		{"connect ok", "\r\n2, CONNECT OK\r\n", "2, CONNECT OK", 17},
		{"connect fail", "\r\n0, CONNECT FAIL\r\n", "0, CONNECT FAIL", 19},
		{"already connect", "\r\n1, ALREADY CONNECT\r\n", "1, ALREADY CONNECT", 22},
		{"send ok", "\r\n4, SEND OK\r\n", "4, SEND OK", 14},
		{"closed", "\r\n3, CLOSED\r\n", "3, CLOSED", 13},
		{"pdp state", "\r\n+CGACT: 1,0\r\n", "+CGACT: 1,0", 13},
		{"data accept sim800", "\r\nDATA ACCEPT: 2,10\r\n", "DATA ACCEPT: 2,10", 21},
		{"data accept sim900", "\r\nDATA ACCEPT:2,10\r\n", "DATA ACCEPT:2,10", 20},
		{"data available sim800", "\r\n+CIPRXGET: 1,2\r\n", "+CIPRXGET: 1,2", 18},
		{"data available sim900", "\r\n+CIPRXGET:1,2\r\n", "+CIPRXGET:1,2", 17},
		{"read data", "\r\n+CIPRXGET: 2,5,8,0\r\nHTTP\r\n\r\n", "+CIPRXGET: 2,5,8,0\r\nHTTP\r\n\r\n", 30},
		{"read data empty", "\r\n+CIPRXGET: 2,5,0,0\r\n", "+CIPRXGET: 2,5,0,0\r\n", 22},
		{"read data no space", "\r\n+CIPRXGET:2,5,4,2\r\nHTTP", "+CIPRXGET:2,5,4,2\r\nHTTP", 25},
		{"receive", "\r\n+RECEIVE,2,1234:\r\n", "+RECEIVE,2,1234:", 20},
		{"call ready", "\r\nCall Ready\r\n", "Call Ready", 14},
		{"sms ready", "\r\nSMS Ready\r\n", "SMS Ready", 13},
		{"pdp deact", "\r\n+PDP: DEACT\r\n", "+PDP: DEACT", 15},
		{"cpin", "\r\n+CPIN: READY\r\n", "+CPIN: READY", 16},
		{"dns ok", "\r\n+CDNSGIP: 1,\"a.com\",\"1.2.3.4\"\r\n", "+CDNSGIP: 1,\"a.com\",\"1.2.3.4\"", 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, n := Digest([]byte(tt.in))
			if out.Kind != KindUrc {
				t.Fatalf("kind = %v, want KindUrc", out.Kind)
			}
			if string(out.Payload) != tt.payload {
				t.Errorf("payload = %q, want %q", out.Payload, tt.payload)
			}
			if n != tt.n {
				t.Errorf("consumed = %d, want %d", n, tt.n)
			}
		})
	}
}

func TestDigestReadDataBinary(t *testing.T) {
	// The raw block may contain CRLF and result-code lookalikes.
	data := []byte("OK\r\nERROR\r\n> \x00\xff")
	in := append([]byte("\r\n+CIPRXGET: 2,0,15,0\r\n"), data...)
	out, n := Digest(in)
	if out.Kind != KindUrc {
		t.Fatalf("kind = %v, want KindUrc", out.Kind)
	}
	if n != len(in) {
		t.Errorf("consumed = %d, want %d", n, len(in))
	}
	if !bytes.HasSuffix(out.Payload, data) {
		t.Errorf("payload %q does not end in the raw block", out.Payload)
	}
}

func TestDigestPrompt(t *testing.T) {
	out, n := Digest([]byte("\r\n> "))
	if out.Kind != KindPrompt || n != 4 {
		t.Errorf("got (%v, %d), want (KindPrompt, 4)", out.Kind, n)
	}
}

func TestDigestGenericSuccess(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		payload string
		n       int
	}{
		{"bare ok", "\r\nOK\r\n", "", 6},
		{"payload", "\r\nSIMCOM_Ltd\r\n\r\nOK\r\n", "SIMCOM_Ltd", 20},
		{"echo and payload", "AT+CGMI\r\r\nSIMCOM_Ltd\r\n\r\nOK\r\n", "SIMCOM_Ltd", 28},
		{"multiline payload", "\r\n+CIPSTATUS: 0,,\"\",\"\",\"\",\"INITIAL\"\r\n\r\nOK\r\n", "+CIPSTATUS: 0,,\"\",\"\",\"\",\"INITIAL\"", 43},
		{"local ip", "\r\n10.0.109.44\r\n", "10.0.109.44", 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, n := Digest([]byte(tt.in))
			if out.Kind != KindResponse || out.Err != nil {
				t.Fatalf("got (%v, %v)", out.Kind, out.Err)
			}
			if string(out.Payload) != tt.payload {
				t.Errorf("payload = %q, want %q", out.Payload, tt.payload)
			}
			if n != tt.n {
				t.Errorf("consumed = %d, want %d", n, tt.n)
			}
		})
	}
}

func TestDigestGenericErrors(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		out, n := Digest([]byte("\r\nERROR\r\n"))
		if out.Kind != KindResponse || n != 9 {
			t.Fatalf("got (%v, %d)", out.Kind, n)
		}
		if !errors.Is(out.Err, ErrModemError) {
			t.Errorf("err = %v", out.Err)
		}
	})

	t.Run("cme", func(t *testing.T) {
		out, n := Digest([]byte("\r\n+CME ERROR: 100\r\n"))
		if out.Kind != KindResponse || n != 19 {
			t.Fatalf("got (%v, %d)", out.Kind, n)
		}
		var cme CMEError
		if !errors.As(out.Err, &cme) || cme != 100 {
			t.Errorf("err = %v, want CME 100", out.Err)
		}
	})

	t.Run("cme with echo", func(t *testing.T) {
		out, n := Digest([]byte("AT+CPIN?\r\r\n+CME ERROR: 10\r\n"))
		if out.Kind != KindResponse || n != 27 {
			t.Fatalf("got (%v, %d)", out.Kind, n)
		}
		var cme CMEError
		if !errors.As(out.Err, &cme) || cme != 10 {
			t.Errorf("err = %v, want CME 10", out.Err)
		}
	})

	t.Run("cms", func(t *testing.T) {
		out, _ := Digest([]byte("\r\n+CMS ERROR: 321\r\n"))
		var cms CMSError
		if !errors.As(out.Err, &cms) || cms != 321 {
			t.Errorf("err = %v, want CMS 321", out.Err)
		}
	})

	t.Run("error after payload", func(t *testing.T) {
		in := "\r\n+XYZ: 1\r\n\r\nERROR\r\n"
		out, n := Digest([]byte(in))
		if out.Kind != KindResponse || n != len(in) {
			t.Fatalf("got (%v, %d), want (KindResponse, %d)", out.Kind, n, len(in))
		}
		if !errors.Is(out.Err, ErrModemError) {
			t.Errorf("err = %v", out.Err)
		}
	})

	t.Run("cme after payload", func(t *testing.T) {
		in := "\r\n+ABC: 2\r\n\r\n+CME ERROR: 21\r\n"
		out, n := Digest([]byte(in))
		if out.Kind != KindResponse || n != len(in) {
			t.Fatalf("got (%v, %d), want (KindResponse, %d)", out.Kind, n, len(in))
		}
		var cme CMEError
		if !errors.As(out.Err, &cme) || cme != 21 {
			t.Errorf("err = %v, want CME 21", out.Err)
		}
	})

	t.Run("success frame ahead of a buffered error", func(t *testing.T) {
		out, n := Digest([]byte("\r\nfoo\r\n\r\nOK\r\n\r\nERROR\r\n"))
		if out.Kind != KindResponse || out.Err != nil || n != 13 {
			t.Fatalf("got (%v, %v, %d), want the leading success frame", out.Kind, out.Err, n)
		}
		if string(out.Payload) != "foo" {
			t.Errorf("payload = %q, want foo", out.Payload)
		}
	})
}

func TestDigestStream(t *testing.T) {
	// Feed a realistic burst and consume frame by frame.
	buf := []byte("\r\nSMS Ready\r\n\r\n2, CONNECT OK\r\n\r\n+CIPRXGET: 1,2\r\n\r\nOK\r\n")
	var kinds []Kind
	for len(buf) > 0 {
		out, n := Digest(buf)
		if n == 0 {
			t.Fatalf("stalled with %q buffered", buf)
		}
		kinds = append(kinds, out.Kind)
		buf = buf[n:]
	}
	want := []Kind{KindUrc, KindUrc, KindUrc, KindResponse}
	if len(kinds) != len(want) {
		t.Fatalf("digested %d frames, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("frame %d kind = %v, want %v", i, kinds[i], want[i])
		}
	}
}
