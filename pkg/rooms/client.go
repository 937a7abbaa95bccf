package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/interviewd-ai/interviewd-backend/pkg/config"
	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

// AgentMetadata is serialized into the room's agent dispatch so the voice
// interviewer receives its prompt. The core stores both fields opaque.
type AgentMetadata struct {
	Prompt         string `json:"prompt,omitempty"`
	OpeningMessage string `json:"openingMessage,omitempty"`
}

// ProvisionParams describe the room to create for one interview session.
type ProvisionParams struct {
	RoomName       string
	ParticipantID  string
	MaxDurationSec int64
	AgentName      string
	Metadata       AgentMetadata
}

// ProvisionResult carries what the join flow hands back to the candidate.
type ProvisionResult struct {
	RoomName    string
	AccessToken string
}

// Service is the media control plane collaborator: room provisioning, agent
// dispatch, recording egress, and teardown. The quota core treats every call
// as advisory cleanup except Provision, whose failure aborts the join.
type Service interface {
	Provision(ctx context.Context, params ProvisionParams) (*ProvisionResult, error)
	StartEgress(ctx context.Context, roomName string) (string, error)
	StopEgress(ctx context.Context, egressID string) error
	DeleteRoom(ctx context.Context, roomName string) error
}

// Client talks to a LiveKit-compatible room server over HTTP.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	agentName string
	tokenTTL  time.Duration
	http      *http.Client
	logg      *logger.Logger
}

// NewClient builds a rooms client from configuration.
func NewClient(cfg config.RoomsConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("rooms base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("rooms api credentials are required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		agentName: cfg.AgentName,
		tokenTTL:  cfg.TokenTTL,
		http:      &http.Client{Timeout: timeout},
		logg:      logg,
	}, nil
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    int64  `json:"empty_timeout"`
	MaxParticipants int    `json:"max_participants"`
	AgentName       string `json:"agent_name,omitempty"`
	Metadata        string `json:"metadata,omitempty"`
}

type startEgressRequest struct {
	RoomName string `json:"room_name"`
}

type startEgressResponse struct {
	EgressID string `json:"egress_id"`
}

func (c *Client) Provision(ctx context.Context, params ProvisionParams) (*ProvisionResult, error) {
	if strings.TrimSpace(params.RoomName) == "" {
		return nil, fmt.Errorf("room name is required")
	}

	metadata, err := json.Marshal(params.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode agent metadata: %w", err)
	}

	agent := params.AgentName
	if agent == "" {
		agent = c.agentName
	}

	body := createRoomRequest{
		Name:            params.RoomName,
		EmptyTimeout:    params.MaxDurationSec,
		MaxParticipants: 2, // candidate + agent
		AgentName:       agent,
		Metadata:        string(metadata),
	}
	if err := c.post(ctx, "/twirp/RoomService/CreateRoom", body, nil); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	token, err := MintAccessToken(c.apiKey, c.apiSecret, params.ParticipantID, params.RoomName, c.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	return &ProvisionResult{RoomName: params.RoomName, AccessToken: token}, nil
}

func (c *Client) StartEgress(ctx context.Context, roomName string) (string, error) {
	if strings.TrimSpace(roomName) == "" {
		return "", fmt.Errorf("room name is required")
	}
	var resp startEgressResponse
	if err := c.post(ctx, "/twirp/Egress/StartRoomCompositeEgress", startEgressRequest{RoomName: roomName}, &resp); err != nil {
		return "", fmt.Errorf("start egress: %w", err)
	}
	if resp.EgressID == "" {
		return "", fmt.Errorf("room server returned empty egress id")
	}
	return resp.EgressID, nil
}

func (c *Client) StopEgress(ctx context.Context, egressID string) error {
	if strings.TrimSpace(egressID) == "" {
		return fmt.Errorf("egress id is required")
	}
	payload := map[string]string{"egress_id": egressID}
	if err := c.post(ctx, "/twirp/Egress/StopEgress", payload, nil); err != nil {
		return fmt.Errorf("stop egress: %w", err)
	}
	return nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomName string) error {
	if strings.TrimSpace(roomName) == "" {
		return fmt.Errorf("room name is required")
	}
	payload := map[string]string{"room": roomName}
	if err := c.post(ctx, "/twirp/RoomService/DeleteRoom", payload, nil); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	// Server-to-server calls authenticate with an admin-scope token.
	token, err := MintAccessToken(c.apiKey, c.apiSecret, "interviewd-api", "admin", time.Minute)
	if err != nil {
		return fmt.Errorf("mint admin token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("room server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
