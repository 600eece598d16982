package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = ">"
	Escape = "+++"

	// Response Codes
	OK        = "OK"
	ERROR     = "ERROR"
	FAIL      = "FAIL"
	Busy      = "BUSY"
	Ready     = "ready"
	SendOK    = "SEND OK"
	AlreadyUp = "ALREADY"
	Connect   = "CONNECT"

	// Asynchronous markers (not tied to the immediately preceding command)
	MarkerWiFiConnected    = "WIFI CONNECTED"
	MarkerWiFiGotIP        = "WIFI GOT IP"
	MarkerWiFiDisconnected = "WIFI DISCONNECT"
	MarkerData             = "+IPD,"
	MarkerBrokerConnected  = "+MQTTCONNECTED:"
	MarkerBrokerLost       = "+MQTTDISCONNECTED:"
	MarkerPush             = "+MQTTSUBRECV:"
	MarkerPubAck           = "+MQTTPUB:OK"
	MarkerConnState        = "+MQTTCONN:"
	markerStationIP        = "STAIP,\""
)
