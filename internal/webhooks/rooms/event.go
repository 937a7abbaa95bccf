package roomswebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
)

// Event names delivered by the room server.
const (
	EventParticipantJoined = "participant_joined"
	EventRoomFinished      = "room_finished"
	EventEgressEnded       = "egress_ended"
)

// Event is the room server's webhook payload. Only the fields the lifecycle
// needs are decoded; everything else is ignored.
type Event struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Room  struct {
		Name string `json:"name"`
	} `json:"room"`
	Participant struct {
		Identity string `json:"identity"`
	} `json:"participant"`
	EgressInfo struct {
		EgressID string `json:"egressId"`
		RoomName string `json:"roomName"`
		Status   string `json:"status"`
	} `json:"egressInfo"`
}

// RoomName resolves the subject room regardless of event shape.
func (e Event) RoomName() string {
	if e.Room.Name != "" {
		return e.Room.Name
	}
	return e.EgressInfo.RoomName
}

// VerifySignature checks the hex HMAC-SHA256 of the payload against the
// shared webhook secret.
func VerifySignature(payload []byte, signature, secret string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// ParseEvent decodes a verified payload.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook event")
	}
	if event.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}
	return &event, nil
}
