package ice

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// TURNRESTConfig configures coturn-compatible temporary credentials:
//
//	username   = <unix expiry>:<prefix>:<random>
//	credential = base64(hmac-sha1(secret, username))
type TURNRESTConfig struct {
	URLs           []string
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	Now      func() time.Time
	RandomID func() string
}

type TURNREST struct {
	cfg    TURNRESTConfig
	static *Static
}

func NewTURNREST(cfg TURNRESTConfig) (*TURNREST, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("turnrest: shared secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("turnrest: ttl must be > 0")
	}
	if cfg.UsernamePrefix == "" || strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, fmt.Errorf("turnrest: invalid username prefix %q", cfg.UsernamePrefix)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandomID == nil {
		cfg.RandomID = uuid.NewString
	}
	return &TURNREST{cfg: cfg, static: NewStatic(cfg.URLs)}, nil
}

// Credentials returns a fresh username/credential pair.
func (t *TURNREST) Credentials() (username, credential string) {
	expiry := t.cfg.Now().UTC().Add(t.cfg.TTL).Unix()
	username = fmt.Sprintf("%d:%s:%s", expiry, t.cfg.UsernamePrefix, t.cfg.RandomID())
	return username, sign(t.cfg.SharedSecret, username)
}

// ICEServers attaches fresh credentials to the TURN entries only.
func (t *TURNREST) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	servers, err := t.static.ICEServers(ctx)
	if err != nil {
		return nil, err
	}
	username, credential := t.Credentials()
	for i := range servers {
		if hasTURNURL(servers[i]) {
			servers[i].Username = username
			servers[i].Credential = credential
		}
	}
	return servers, nil
}

func sign(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
