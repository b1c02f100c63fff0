// Package ice issues the ICE server list handed to browsers before they
// start peer connection negotiation.
package ice

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicerelay/internal/config"
)

// Provider returns the ICE servers for one client request. Credentials may be
// short-lived, so callers should not cache the result.
type Provider interface {
	ICEServers(ctx context.Context) ([]webrtc.ICEServer, error)
}

// New builds the provider selected by cfg.Provider.
func New(cfg config.ICEConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "static":
		return NewStatic(cfg.URLs), nil
	case "turnrest":
		return NewTURNREST(TURNRESTConfig{
			URLs:           cfg.URLs,
			SharedSecret:   cfg.TURNSecret,
			TTL:            cfg.TURNTTL,
			UsernamePrefix: cfg.TURNUserPrefix,
		})
	case "twilio":
		return NewTwilio(TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			BaseURL:    cfg.TwilioBaseURL,
			TTL:        cfg.TwilioTTL,
		})
	}
	return nil, fmt.Errorf("unknown ice provider %q", cfg.Provider)
}

// Static hands out a fixed list, one ICEServer per URL.
type Static struct {
	servers []webrtc.ICEServer
}

func NewStatic(urls []string) *Static {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	return &Static{servers: servers}
}

func (s *Static) ICEServers(context.Context) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, len(s.servers))
	copy(out, s.servers)
	return out, nil
}

func isTURNURL(raw string) bool {
	u := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:")
}

func hasTURNURL(server webrtc.ICEServer) bool {
	for _, u := range server.URLs {
		if isTURNURL(u) {
			return true
		}
	}
	return false
}
