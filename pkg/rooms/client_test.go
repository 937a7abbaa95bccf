package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/interviewd-ai/interviewd-backend/pkg/config"
)

func testConfig(baseURL string) config.RoomsConfig {
	return config.RoomsConfig{
		BaseURL:        baseURL,
		APIKey:         "api-key",
		APISecret:      "api-secret",
		AgentName:      "interviewer",
		RequestTimeout: 2 * time.Second,
		TokenTTL:       time.Hour,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	token, err := MintAccessToken("key", "secret", "candidate-1", "iv-room-9", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	identity, room, err := ParseAccessToken("secret", token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if identity != "candidate-1" || room != "iv-room-9" {
		t.Fatalf("unexpected claims identity=%q room=%q", identity, room)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	token, err := MintAccessToken("key", "secret", "candidate-1", "iv-room-9", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	if _, _, err := ParseAccessToken("other-secret", token); err == nil {
		t.Fatal("expected signature validation failure")
	}
}

func TestProvisionCreatesRoomAndToken(t *testing.T) {
	var captured createRoomRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "CreateRoom") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Fatalf("missing bearer auth, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Provision(context.Background(), ProvisionParams{
		RoomName:       "iv-room-1",
		ParticipantID:  "candidate-1",
		MaxDurationSec: 600,
		Metadata:       AgentMetadata{Prompt: "ask three questions"},
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	if captured.Name != "iv-room-1" || captured.AgentName != "interviewer" {
		t.Fatalf("unexpected room request %+v", captured)
	}
	if !strings.Contains(captured.Metadata, "ask three questions") {
		t.Fatalf("agent metadata not forwarded: %q", captured.Metadata)
	}
}

func TestStartEgressReturnsID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(startEgressResponse{EgressID: "eg-77"})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	id, err := client.StartEgress(context.Background(), "iv-room-1")
	if err != nil {
		t.Fatalf("start egress: %v", err)
	}
	if id != "eg-77" {
		t.Fatalf("unexpected egress id %q", id)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.DeleteRoom(context.Background(), "iv-room-1"); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}
