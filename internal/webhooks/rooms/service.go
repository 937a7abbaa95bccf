package roomswebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

// roomPrefix ties a room name back to its interview row.
const roomPrefix = "interview-"

type interviewLifecycle interface {
	MarkRecording(ctx context.Context, id uuid.UUID) error
	End(ctx context.Context, id uuid.UUID, reason string) (*models.Interview, error)
}

// ServiceParams groups the webhook service dependencies.
type ServiceParams struct {
	Interviews interviewLifecycle
	AgentName  string
	Logger     *logger.Logger
}

// Service translates room server events into lifecycle transitions. Events
// for rooms this system did not create are acknowledged and dropped.
type Service struct {
	interviews interviewLifecycle
	agentName  string
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Interviews == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "interview service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		interviews: params.Interviews,
		agentName:  params.AgentName,
		logg:       params.Logger,
	}, nil
}

// HandleEvent routes one verified, deduplicated event.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}

	interviewID, ok := interviewIDFromRoom(event.RoomName())
	if !ok {
		return nil
	}
	ctx = s.logg.WithInterviewID(ctx, interviewID.String())

	switch event.Event {
	case EventParticipantJoined:
		if s.isAgent(event.Participant.Identity) {
			return nil
		}
		return s.interviews.MarkRecording(ctx, interviewID)
	case EventRoomFinished:
		_, err := s.interviews.End(ctx, interviewID, "")
		return err
	case EventEgressEnded:
		_, err := s.interviews.End(ctx, interviewID, "")
		return err
	default:
		return nil
	}
}

// isAgent filters the voice interviewer's own join event; only the
// candidate's arrival starts recording.
func (s *Service) isAgent(identity string) bool {
	if identity == "" {
		return false
	}
	if s.agentName != "" && identity == s.agentName {
		return true
	}
	return strings.HasPrefix(identity, "agent-")
}

func interviewIDFromRoom(roomName string) (uuid.UUID, bool) {
	if !strings.HasPrefix(roomName, roomPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(roomName, roomPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
