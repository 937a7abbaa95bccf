package roomswebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/interviewd-ai/interviewd-backend/pkg/db/models"
	pkgerrors "github.com/interviewd-ai/interviewd-backend/pkg/errors"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

type fakeLifecycle struct {
	mu         sync.Mutex
	recordings []uuid.UUID
	endings    []uuid.UUID
}

func (f *fakeLifecycle) MarkRecording(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordings = append(f.recordings, id)
	return nil
}

func (f *fakeLifecycle) End(_ context.Context, id uuid.UUID, _ string) (*models.Interview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endings = append(f.endings, id)
	return &models.Interview{ID: id}, nil
}

func newTestService(t *testing.T) (*Service, *fakeLifecycle) {
	t.Helper()
	lifecycle := &fakeLifecycle{}
	svc, err := NewService(ServiceParams{
		Interviews: lifecycle,
		AgentName:  "interviewer",
		Logger:     logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, lifecycle
}

func TestHandleEventParticipantJoined(t *testing.T) {
	t.Parallel()

	svc, lifecycle := newTestService(t)
	id := uuid.New()

	event := &Event{ID: "evt-1", Event: EventParticipantJoined}
	event.Room.Name = roomPrefix + id.String()
	event.Participant.Identity = "candidate-7"

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(lifecycle.recordings) != 1 || lifecycle.recordings[0] != id {
		t.Fatalf("expected recording for %s, got %v", id, lifecycle.recordings)
	}
}

func TestHandleEventIgnoresAgentJoin(t *testing.T) {
	t.Parallel()

	svc, lifecycle := newTestService(t)
	id := uuid.New()

	for _, identity := range []string{"interviewer", "agent-AJ_x92"} {
		event := &Event{ID: "evt-1", Event: EventParticipantJoined}
		event.Room.Name = roomPrefix + id.String()
		event.Participant.Identity = identity
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("handle event for %s: %v", identity, err)
		}
	}
	if len(lifecycle.recordings) != 0 {
		t.Fatalf("agent joins should not start recording, got %v", lifecycle.recordings)
	}
}

func TestHandleEventRoomFinished(t *testing.T) {
	t.Parallel()

	svc, lifecycle := newTestService(t)
	id := uuid.New()

	event := &Event{ID: "evt-2", Event: EventRoomFinished}
	event.Room.Name = roomPrefix + id.String()

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(lifecycle.endings) != 1 || lifecycle.endings[0] != id {
		t.Fatalf("expected ending for %s, got %v", id, lifecycle.endings)
	}
}

func TestHandleEventEgressEndedResolvesRoomFromEgressInfo(t *testing.T) {
	t.Parallel()

	svc, lifecycle := newTestService(t)
	id := uuid.New()

	event := &Event{ID: "evt-3", Event: EventEgressEnded}
	event.EgressInfo.EgressID = "EG_123"
	event.EgressInfo.RoomName = roomPrefix + id.String()

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(lifecycle.endings) != 1 {
		t.Fatalf("expected one ending, got %v", lifecycle.endings)
	}
}

func TestHandleEventForeignRoom(t *testing.T) {
	t.Parallel()

	svc, lifecycle := newTestService(t)

	event := &Event{ID: "evt-4", Event: EventRoomFinished}
	event.Room.Name = "town-hall"

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("foreign rooms should be dropped silently: %v", err)
	}
	if len(lifecycle.endings) != 0 {
		t.Fatalf("unexpected lifecycle calls: %v", lifecycle.endings)
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt-9","event":"room_finished","room":{"name":"interview-x"}}`)
	event, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Event != EventRoomFinished || event.Room.Name != "interview-x" {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := ParseEvent([]byte(`{"id":"evt-10"}`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseEvent([]byte(`not json`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt-1"}`)
	secret := "whsec_test"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	if err := VerifySignature(payload, signature, secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(payload, signature, "other-secret"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := VerifySignature(payload, "", secret); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for missing signature, got %v", err)
	}
	if err := VerifySignature(payload, signature, ""); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error for missing secret, got %v", err)
	}
}

type fakeIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], nil
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]string{}
	}
	if _, exists := f.keys[key]; exists {
		return false, nil
	}
	f.keys[key] = "1"
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	t.Parallel()

	guard, err := NewIdempotencyGuard(&fakeIdempotencyStore{}, time.Hour, "rooms")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt-1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if seen {
		t.Fatal("first delivery should not be marked seen")
	}

	seen, err = guard.CheckAndMark(ctx, "evt-1")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !seen {
		t.Fatal("redelivery should be marked seen")
	}

	if err := guard.Delete(ctx, "evt-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seen, _ = guard.CheckAndMark(ctx, "evt-1"); seen {
		t.Fatal("deleted mark should allow a retry")
	}
}
