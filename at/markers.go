package at

import (
	"bytes"
	"strconv"
)

// Data is an inbound socket payload announced by a "+IPD" marker.
type Data struct {
	LinkID  int
	Length  int
	Payload []byte
}

// Push is a broker-delivered message announced by a "+MQTTSUBRECV" marker.
type Push struct {
	LinkID  int
	Topic   string
	Length  int
	Payload []byte
}

// ParseData extracts an inbound socket payload from buf.
//
// The wire format is "+IPD,<len>:<payload>" in single-connection mode and
// "+IPD,<link>,<len>:<payload>" when multiple connections are enabled. The
// payload is not delimited; it is exactly <len> bytes following the colon
// and may contain arbitrary data. If the frame was cut short, the payload
// holds what actually arrived.
func ParseData(buf []byte, multiConn bool) (Data, bool) {
	i := bytes.Index(buf, []byte(MarkerData))
	if i < 0 {
		return Data{}, false
	}
	rest := buf[i+len(MarkerData):]

	var d Data
	header := rest
	if j := bytes.IndexByte(header, ':'); j >= 0 {
		header = header[:j]
	}
	// The link field is mandatory with multiple connections enabled, but
	// the firmware may include it in single-connection mode too. Take it
	// whenever the header before the colon carries a comma.
	if multiConn || bytes.IndexByte(header, ',') >= 0 {
		link, after, ok := parseInt(rest, ',')
		if !ok {
			return Data{}, false
		}
		d.LinkID = link
		rest = after
	}

	length, after, ok := parseInt(rest, ':')
	if !ok || length < 0 {
		return Data{}, false
	}
	d.Length = length

	if length > len(after) {
		length = len(after)
	}
	d.Payload = after[:length]
	return d, true
}

// ParsePush extracts a broker push message from buf.
//
// The wire format is "+MQTTSUBRECV:<link>,"<topic>",<len>,<payload>". As
// with ParseData, the payload is raw bytes of the declared length.
func ParsePush(buf []byte) (Push, bool) {
	i := bytes.Index(buf, []byte(MarkerPush))
	if i < 0 {
		return Push{}, false
	}
	rest := buf[i+len(MarkerPush):]

	var p Push
	link, rest, ok := parseInt(rest, ',')
	if !ok {
		return Push{}, false
	}
	p.LinkID = link

	if len(rest) == 0 || rest[0] != '"' {
		return Push{}, false
	}
	end := bytes.IndexByte(rest[1:], '"')
	if end < 0 {
		return Push{}, false
	}
	p.Topic = string(rest[1 : 1+end])
	rest = rest[2+end:]

	if len(rest) == 0 || rest[0] != ',' {
		return Push{}, false
	}
	length, rest, ok := parseInt(rest[1:], ',')
	if !ok || length < 0 {
		return Push{}, false
	}
	p.Length = length

	if length > len(rest) {
		length = len(rest)
	}
	p.Payload = rest[:length]
	return p, true
}

// StationIP extracts the station address from an address-info response,
// which reports it as `+CIFSR:STAIP,"<ip>"`.
func StationIP(buf []byte) (string, bool) {
	i := bytes.Index(buf, []byte(markerStationIP))
	if i < 0 {
		return "", false
	}
	rest := buf[i+len(markerStationIP):]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return string(rest[:end]), true
}

// ConnState extracts the broker connection state from a
// "+MQTTCONN:<link>,<state>,..." status response.
func ConnState(buf []byte) (int, bool) {
	i := bytes.Index(buf, []byte(MarkerConnState))
	if i < 0 {
		return 0, false
	}
	rest := buf[i+len(MarkerConnState):]
	if _, rest, ok := parseInt(rest, ','); ok {
		if state, _, ok := parseInt(rest, ','); ok {
			return state, true
		}
		// State may be the last field on the line.
		if j := bytes.IndexAny(rest, CRLF); j > 0 {
			rest = rest[:j]
		}
		if state, err := strconv.Atoi(string(rest)); err == nil {
			return state, true
		}
	}
	return 0, false
}

// parseInt reads a decimal integer from the start of buf up to the given
// separator, returning the value and the bytes following the separator.
func parseInt(buf []byte, sep byte) (int, []byte, bool) {
	i := bytes.IndexByte(buf, sep)
	if i < 0 {
		return 0, nil, false
	}
	v, err := strconv.Atoi(string(bytes.TrimSpace(buf[:i])))
	if err != nil {
		return 0, nil, false
	}
	return v, buf[i+1:], true
}
