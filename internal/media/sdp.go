package media

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var ErrUnexpectedSDPType = errors.New("media: unexpected sdp type")

// EncodeDescription renders desc as the JSON object carried in the sdp field
// of Offer and Answer messages.
func EncodeDescription(desc webrtc.SessionDescription) (string, error) {
	b, err := json.Marshal(desc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeDescription(raw string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode session description: %w", err)
	}
	if desc.Type != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedSDPType, desc.Type, want)
	}
	return desc, nil
}
