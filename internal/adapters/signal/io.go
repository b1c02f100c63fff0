package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/app"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				c.Close()
				return
			}
		}
	}
}

// readPump is the connection's only event worker. When it returns the
// disconnect sequence runs.
func (ctl *SignalWSController) readPump(ctx context.Context, session *app.Connection, c *WsSignalConn) {
	logger := log.With().Str("module", "signal").Str("conn", string(session.ID)).Logger()
	defer func() {
		logger.Info().Msg("readPump closing")
		ctl.Manager.Disconnect(ctx, session)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	})

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("readPump ctx done")
			return
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrReadLimit) {
				logger.Warn().Err(err).Msg("readPump read error")
			} else {
				logger.Debug().Err(err).Msg("readPump read ended")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))

		msg, err := Decode(kind, data)
		if err != nil {
			logger.Warn().Err(err).Int("bytes", len(data)).Msg("bad frame")
			continue
		}
		session.Handle(ctx, msg)
	}
}
