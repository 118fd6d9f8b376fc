package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
)

// MessageType is the value of the message_type discriminator.
type MessageType string

const (
	TypeJoin            MessageType = "Join"
	TypeDisconnect      MessageType = "Disconnect"
	TypePeerList        MessageType = "PeerList"
	TypeOffer           MessageType = "Offer"
	TypeAnswer          MessageType = "Answer"
	TypeIceCandidate    MessageType = "IceCandidate"
	TypeRequestPeerList MessageType = "RequestPeerList"
	TypeInitiateCall    MessageType = "InitiateCall"
	TypeMediaError      MessageType = "MediaError"
	TypeEndCall         MessageType = "EndCall"
	TypeCallRequest     MessageType = "CallRequest"
	TypeCallResponse    MessageType = "CallResponse"
	TypeError           MessageType = "Error"
	TypeConnectionLost  MessageType = "ConnectionLost"
)

const typeField = "message_type"

// Message is one of the variant structs in this file. The set is closed:
// only types in this package implement it.
type Message interface {
	Type() MessageType
	isMessage()
}

type Join struct {
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

type Disconnect struct {
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

// PeerList is the relay's roster for the room the receiver joined.
type PeerList struct {
	Peers []string `json:"peers"`
}

// Offer and Answer carry an SDP payload that this package treats as opaque.
type Offer struct {
	RoomID   string `json:"room_id"`
	SDP      string `json:"sdp"`
	FromPeer string `json:"from_peer"`
	ToPeer   string `json:"to_peer"`
}

type Answer struct {
	RoomID   string `json:"room_id"`
	SDP      string `json:"sdp"`
	FromPeer string `json:"from_peer"`
	ToPeer   string `json:"to_peer"`
}

type IceCandidate struct {
	RoomID    string `json:"room_id"`
	Candidate string `json:"candidate"`
	FromPeer  string `json:"from_peer"`
	ToPeer    string `json:"to_peer"`
}

type RequestPeerList struct{}

type InitiateCall struct {
	PeerID string `json:"peer_id"`
	RoomID string `json:"room_id"`
}

type MediaError struct {
	ErrorType   string `json:"error_type"`
	Description string `json:"description"`
	PeerID      string `json:"peer_id"`
}

type EndCall struct {
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

type CallRequest struct {
	RoomID   string   `json:"room_id"`
	FromPeer string   `json:"from_peer"`
	ToPeers  []string `json:"to_peers"`
}

type CallResponse struct {
	RoomID   string `json:"room_id"`
	FromPeer string `json:"from_peer"`
	ToPeer   string `json:"to_peer"`
	Accepted bool   `json:"accepted"`
}

// Error is reported by the relay.
type Error struct {
	Message string `json:"message"`
}

type ConnectionLost struct {
	PeerID string `json:"peer_id"`
}

func (Join) Type() MessageType            { return TypeJoin }
func (Disconnect) Type() MessageType      { return TypeDisconnect }
func (PeerList) Type() MessageType        { return TypePeerList }
func (Offer) Type() MessageType           { return TypeOffer }
func (Answer) Type() MessageType          { return TypeAnswer }
func (IceCandidate) Type() MessageType    { return TypeIceCandidate }
func (RequestPeerList) Type() MessageType { return TypeRequestPeerList }
func (InitiateCall) Type() MessageType    { return TypeInitiateCall }
func (MediaError) Type() MessageType      { return TypeMediaError }
func (EndCall) Type() MessageType         { return TypeEndCall }
func (CallRequest) Type() MessageType     { return TypeCallRequest }
func (CallResponse) Type() MessageType    { return TypeCallResponse }
func (Error) Type() MessageType           { return TypeError }
func (ConnectionLost) Type() MessageType  { return TypeConnectionLost }

func (Join) isMessage()            {}
func (Disconnect) isMessage()      {}
func (PeerList) isMessage()        {}
func (Offer) isMessage()           {}
func (Answer) isMessage()          {}
func (IceCandidate) isMessage()    {}
func (RequestPeerList) isMessage() {}
func (InitiateCall) isMessage()    {}
func (MediaError) isMessage()      {}
func (EndCall) isMessage()         {}
func (CallRequest) isMessage()     {}
func (CallResponse) isMessage()    {}
func (Error) isMessage()           {}
func (ConnectionLost) isMessage()  {}

type variant struct {
	required []string
	decode   func([]byte) (Message, error)
}

var variants = map[MessageType]variant{
	TypeJoin:            {[]string{"room_id", "peer_id"}, decodeAs[Join]},
	TypeDisconnect:      {[]string{"room_id", "peer_id"}, decodeAs[Disconnect]},
	TypePeerList:        {[]string{"peers"}, decodeAs[PeerList]},
	TypeOffer:           {[]string{"room_id", "sdp", "from_peer", "to_peer"}, decodeAs[Offer]},
	TypeAnswer:          {[]string{"room_id", "sdp", "from_peer", "to_peer"}, decodeAs[Answer]},
	TypeIceCandidate:    {[]string{"room_id", "candidate", "from_peer", "to_peer"}, decodeAs[IceCandidate]},
	TypeRequestPeerList: {nil, decodeAs[RequestPeerList]},
	TypeInitiateCall:    {[]string{"peer_id", "room_id"}, decodeAs[InitiateCall]},
	TypeMediaError:      {[]string{"error_type", "description", "peer_id"}, decodeAs[MediaError]},
	TypeEndCall:         {[]string{"room_id", "peer_id"}, decodeAs[EndCall]},
	TypeCallRequest:     {[]string{"room_id", "from_peer", "to_peers"}, decodeAs[CallRequest]},
	TypeCallResponse:    {[]string{"room_id", "from_peer", "to_peer", "accepted"}, decodeAs[CallResponse]},
	TypeError:           {[]string{"message"}, decodeAs[Error]},
	TypeConnectionLost:  {[]string{"peer_id"}, decodeAs[ConnectionLost]},
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return normalize(m), nil
}

// normalize replaces nil slices with empty ones so a decoded message and its
// encoded form agree.
func normalize(m Message) Message {
	switch v := m.(type) {
	case PeerList:
		if v.Peers == nil {
			v.Peers = []string{}
		}
		return v
	case CallRequest:
		if v.ToPeers == nil {
			v.ToPeers = []string{}
		}
		return v
	default:
		return m
	}
}

// Encode renders m as a single JSON object with the message_type
// discriminator alongside the variant's fields.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, callerr.Protocol("encode", fmt.Errorf("%w: nil message", ErrMalformedMessage))
	}
	if _, ok := variants[m.Type()]; !ok {
		return nil, callerr.Protocol("encode", fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type()))
	}

	body, err := json.Marshal(normalize(m))
	if err != nil {
		return nil, callerr.Protocol("encode", err)
	}
	// body is a JSON object; splice the discriminator in front of its fields.
	tag, _ := json.Marshal(string(m.Type()))
	var buf bytes.Buffer
	buf.Grow(len(body) + len(typeField) + len(tag) + 4)
	buf.WriteString(`{"` + typeField + `":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses one frame. Every field of the variant must be present and
// non-null; unknown extra fields are ignored.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, callerr.Protocol("decode", fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}

	rawType, ok := fields[typeField]
	if !ok || isNull(rawType) {
		return nil, callerr.Protocol("decode", fmt.Errorf("%w: %s", ErrMissingField, typeField))
	}
	var name string
	if err := json.Unmarshal(rawType, &name); err != nil {
		return nil, callerr.Protocol("decode", fmt.Errorf("%w: %s is not a string", ErrMalformedMessage, typeField))
	}

	v, ok := variants[MessageType(name)]
	if !ok {
		return nil, callerr.Protocol("decode", fmt.Errorf("%w: %q", ErrUnknownMessageType, name))
	}
	for _, f := range v.required {
		if raw, ok := fields[f]; !ok || isNull(raw) {
			return nil, callerr.Protocol("decode", fmt.Errorf("%w: %s.%s", ErrMissingField, name, f))
		}
	}

	m, err := v.decode(data)
	if err != nil {
		return nil, callerr.Protocol("decode", fmt.Errorf("%w: %s: %v", ErrMalformedMessage, name, err))
	}
	return m, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
