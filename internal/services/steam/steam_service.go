// Package steam talks to the official Steam Web API. It is only used for
// non-price status data; prices always come from the scraping strategies.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultAPIURL = "https://api.steampowered.com"

// a long-lived public profile, used to probe the key
const probeSteamID = "76561197960435530"

type SteamService struct {
	apiKey string
	client *resty.Client
}

type SteamUser struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
}

type SteamUserResponse struct {
	Response struct {
		Players []SteamUser `json:"players"`
	} `json:"response"`
}

type ServerInfo struct {
	ServerTime       int64  `json:"servertime"`
	ServerTimeString string `json:"servertimestring"`
}

// Status is the summary reported by the status endpoint.
type Status struct {
	Configured bool      `json:"configured"`
	KeyValid   bool      `json:"key_valid"`
	ServerTime time.Time `json:"server_time,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func NewSteamService(apiKey, baseURL string, timeout time.Duration) *SteamService {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetBaseURL(baseURL)

	return &SteamService{
		apiKey: apiKey,
		client: client,
	}
}

func (s *SteamService) Configured() bool { return s.apiKey != "" }

func (s *SteamService) ValidateAPIKey(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"key": s.apiKey, "steamids": probeSteamID}).
		Get("/ISteamUser/GetPlayerSummaries/v2/")
	if err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("invalid API key: status %d", resp.StatusCode())
	}

	var users SteamUserResponse
	if err := json.Unmarshal(resp.Body(), &users); err != nil {
		return fmt.Errorf("decode player summaries: %w", err)
	}
	if len(users.Response.Players) == 0 {
		return fmt.Errorf("invalid API key: no player summaries returned")
	}
	return nil
}

// GetServerInfo needs no key and tells whether the Web API is reachable.
func (s *SteamService) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	resp, err := s.client.R().SetContext(ctx).Get("/ISteamWebAPIUtil/GetServerInfo/v1/")
	if err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get server info: status %d", resp.StatusCode())
	}

	var info ServerInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("decode server info: %w", err)
	}
	return &info, nil
}

// Status probes reachability and, when a key is configured, its validity.
func (s *SteamService) Status(ctx context.Context) Status {
	st := Status{Configured: s.Configured()}
	info, err := s.GetServerInfo(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.ServerTime = time.Unix(info.ServerTime, 0).UTC()
	if !st.Configured {
		return st
	}
	if err := s.ValidateAPIKey(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.KeyValid = true
	return st
}
