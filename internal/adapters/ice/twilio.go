package ice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	TTL        time.Duration

	Client *http.Client
}

// Twilio issues Network Traversal Service tokens, one request per call.
type Twilio struct {
	cfg TwilioConfig
}

var ErrUpstream = errors.New("ice credentials upstream failed")

func NewTwilio(cfg TwilioConfig) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Twilio{cfg: cfg}, nil
}

type twilioToken struct {
	ICEServers []struct {
		URL        string `json:"url"`
		URLs       string `json:"urls"`
		Username   string `json:"username"`
		Credential string `json:"credential"`
	} `json:"ice_servers"`
}

func (t *Twilio) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Tokens.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID))

	form := url.Values{}
	if t.cfg.TTL > 0 {
		form.Set("Ttl", strconv.Itoa(int(t.cfg.TTL/time.Second)))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if resp.StatusCode/100 != 2 {
		log.Error().Str("module", "adapters.ice").Int("status", resp.StatusCode).Msg("twilio token request rejected")
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var tok twilioToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("%w: decode token: %w", ErrUpstream, err)
	}

	servers := make([]webrtc.ICEServer, 0, len(tok.ICEServers))
	for _, s := range tok.ICEServers {
		u := s.URLs
		if u == "" {
			u = s.URL
		}
		if u == "" {
			continue
		}
		server := webrtc.ICEServer{URLs: []string{u}, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}
