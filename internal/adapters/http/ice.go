package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/adapters/ice"
)

type iceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type iceServersResponse struct {
	ICEServers []iceServerJSON `json:"iceServers"`
}

func toICEServerJSON(servers []webrtc.ICEServer) []iceServerJSON {
	out := make([]iceServerJSON, 0, len(servers))
	for _, s := range servers {
		entry := iceServerJSON{URLs: s.URLs, Username: s.Username}
		if cred, ok := s.Credential.(string); ok {
			entry.Credential = cred
		}
		out = append(out, entry)
	}
	return out
}

// ICEServersHandler serves {"iceServers": [...]}; provider failures become a 500.
func ICEServersHandler(p ice.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		servers, err := p.ICEServers(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("cannot issue ice servers")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue ICE servers"})
			return
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, iceServersResponse{ICEServers: toICEServerJSON(servers)})
	}
}
