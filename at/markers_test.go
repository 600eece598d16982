package at_test

import (
	"bytes"
	"testing"

	"i4.energy/across/mqttgw/at"
)

func TestParseData(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		multiConn bool
		ok        bool
		linkID    int
		length    int
		payload   string
	}{
		{
			name:    "Single connection",
			input:   "+IPD,5:HELLO",
			ok:      true,
			linkID:  0,
			length:  5,
			payload: "HELLO",
		},
		{
			name:    "Single connection with link field",
			input:   "+IPD,0,5:HELLO",
			ok:      true,
			linkID:  0,
			length:  5,
			payload: "HELLO",
		},
		{
			name:    "Single connection with nonzero link field",
			input:   "+IPD,2,5:HELLO",
			ok:      true,
			linkID:  2,
			length:  5,
			payload: "HELLO",
		},
		{
			name:      "Multi connection",
			input:     "+IPD,0,5:HELLO",
			multiConn: true,
			ok:        true,
			linkID:    0,
			length:    5,
			payload:   "HELLO",
		},
		{
			name:      "Multi connection link 3",
			input:     "+IPD,3,11:hello world",
			multiConn: true,
			ok:        true,
			linkID:    3,
			length:    11,
			payload:   "hello world",
		},
		{
			name:    "Marker embedded in other response text",
			input:   "OK\r\n+IPD,4:data trailing",
			ok:      true,
			linkID:  0,
			length:  4,
			payload: "data",
		},
		{
			name:    "Payload with commas and colons",
			input:   "+IPD,9:a,b:c,d:e",
			ok:      true,
			length:  9,
			payload: "a,b:c,d:e",
		},
		{
			name:    "Truncated payload returns what arrived",
			input:   "+IPD,10:HELLO",
			ok:      true,
			length:  10,
			payload: "HELLO",
		},
		{
			name:  "Missing colon",
			input: "+IPD,5 HELLO",
			ok:    false,
		},
		{
			name:  "No marker",
			input: "OK\r\n",
			ok:    false,
		},
		{
			name:      "Garbage link id",
			input:     "+IPD,x,5:HELLO",
			multiConn: true,
			ok:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := at.ParseData([]byte(tt.input), tt.multiConn)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if d.LinkID != tt.linkID {
				t.Errorf("expected link %d, got %d", tt.linkID, d.LinkID)
			}
			if d.Length != tt.length {
				t.Errorf("expected length %d, got %d", tt.length, d.Length)
			}
			if !bytes.Equal(d.Payload, []byte(tt.payload)) {
				t.Errorf("expected payload %q, got %q", tt.payload, d.Payload)
			}
		})
	}
}

func TestParsePush(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ok      bool
		topic   string
		length  int
		payload string
	}{
		{
			name:    "Basic push",
			input:   `+MQTTSUBRECV:0,"stm32/control",4,led1`,
			ok:      true,
			topic:   "stm32/control",
			length:  4,
			payload: "led1",
		},
		{
			name:    "JSON payload with commas and quotes",
			input:   `+MQTTSUBRECV:0,"sensors/cfg",15,{"interval":10}` + "x",
			ok:      true,
			topic:   "sensors/cfg",
			length:  15,
			payload: `{"interval":10}`,
		},
		{
			name:    "Push after command response",
			input:   "OK\r\n+MQTTSUBRECV:0,\"t\",5,HELLO\r\n",
			ok:      true,
			topic:   "t",
			length:  5,
			payload: "HELLO",
		},
		{
			name:  "Missing topic quotes",
			input: "+MQTTSUBRECV:0,topic,4,abcd",
			ok:    false,
		},
		{
			name:  "Missing length",
			input: `+MQTTSUBRECV:0,"topic"`,
			ok:    false,
		},
		{
			name:  "No marker",
			input: "ERROR\r\n",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := at.ParsePush([]byte(tt.input))
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if p.Topic != tt.topic {
				t.Errorf("expected topic %q, got %q", tt.topic, p.Topic)
			}
			if p.Length != tt.length {
				t.Errorf("expected length %d, got %d", tt.length, p.Length)
			}
			if !bytes.Equal(p.Payload, []byte(tt.payload)) {
				t.Errorf("expected payload %q, got %q", tt.payload, p.Payload)
			}
		})
	}
}

func TestStationIP(t *testing.T) {
	buf := []byte("+CIFSR:STAIP,\"192.168.1.42\"\r\n+CIFSR:STAMAC,\"aa:bb\"\r\nOK\r\n")
	ip, ok := at.StationIP(buf)
	if !ok {
		t.Fatal("expected to find station IP")
	}
	if ip != "192.168.1.42" {
		t.Errorf("expected 192.168.1.42, got %q", ip)
	}

	if _, ok := at.StationIP([]byte("OK\r\n")); ok {
		t.Error("expected no station IP in plain OK response")
	}
}

func TestConnState(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		state int
	}{
		{
			name:  "Full status line",
			input: "+MQTTCONN:0,4,1,\"broker.local\",1883,\"\",1\r\nOK\r\n",
			ok:    true,
			state: 4,
		},
		{
			name:  "State as final field",
			input: "+MQTTCONN:0,6\r\n",
			ok:    true,
			state: 6,
		},
		{
			name:  "No marker",
			input: "OK\r\n",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, ok := at.ConnState([]byte(tt.input))
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && state != tt.state {
				t.Errorf("expected state %d, got %d", tt.state, state)
			}
		})
	}
}
