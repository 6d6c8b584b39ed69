package models

import "encoding/json"

// SignalType represents the type of a control-channel message
type SignalType string

const (
	// Inbound from endpoints
	SignalTypeRegister        SignalType = "register"
	SignalTypeCallRequest     SignalType = "call-request"
	SignalTypeCallAnswer      SignalType = "call-answer"
	SignalTypeCallEstablished SignalType = "call-established"
	SignalTypeCallEnded       SignalType = "call-ended"
	SignalTypeSDPOffer        SignalType = "sdp-offer"
	SignalTypeSDPAnswer       SignalType = "sdp-answer"
	SignalTypeICECandidate    SignalType = "ice-candidate"
	SignalTypeMuteToggle      SignalType = "mute-toggle"
	SignalTypeVideoToggle     SignalType = "video-toggle"

	// Outbound to endpoints
	SignalTypeRegistered   SignalType = "registered"
	SignalTypeIncomingCall SignalType = "incoming-call"
	SignalTypeCallFailed   SignalType = "call-failed"
	SignalTypeCallAnswered SignalType = "call-answered"
	SignalTypeError        SignalType = "error"
)

// End/failure reasons carried on call-failed and call-ended messages
const (
	ReasonNotOnline  = "not-online"
	ReasonBusy       = "busy"
	ReasonTimeout    = "timeout"
	ReasonUserEnded  = "user-ended"
	ReasonUserLogout = "user-logout"
)

// SignalMessage is the wire unit exchanged with endpoints. Data is an
// opaque blob for sdp-offer/sdp-answer/ice-candidate and the toggle
// kinds; the coordinator relays it without inspecting it.
type SignalMessage struct {
	Type     SignalType      `json:"type"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Email    string          `json:"email,omitempty"`
	SID      string          `json:"sid,omitempty"`
	Accepted *bool           `json:"accepted,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Bool returns a pointer for the Accepted field
func Bool(v bool) *bool { return &v }
