// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package serverclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spoolease/bridge/pkg/log"
)

// Event is one push notification delivered over Server B's spool event
// channel.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

const (
	initialBackoff = 1
	maxBackoff     = 60
)

// ListenEvents connects to Server B's spool event websocket and invokes
// handler for every event received. It reconnects with exponential backoff
// (1s doubling to 60s) on disconnection, and returns only when ctx is
// cancelled.
func (c *Client) ListenEvents(ctx context.Context, handler func(Event)) error {
	wsURL := c.wsURL + "/api/v1/spool"
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			log.Warnf("serverclient: websocket connection failed: %s", err.Error())
		} else {
			log.Infof("serverclient: connected to event channel at %s", wsURL)
			backoff = initialBackoff
			readLoop(ctx, conn, handler)
			conn.Close()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Infof("serverclient: reconnecting to event channel in %ds", backoff)
		sleep(ctx, time.Duration(backoff)*time.Second)
		backoff = min(backoff*2, maxBackoff)
	}
}

// readLoop blocks on conn.ReadMessage, which DialContext's ctx does not
// govern once the handshake completes. A watcher goroutine closes conn as
// soon as ctx is cancelled so a pending read unblocks immediately instead
// of parking the event loop past shutdown.
func readLoop(ctx context.Context, conn *websocket.Conn, handler func(Event)) {
	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopWatcher:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("serverclient: websocket read error: %s", err.Error())
			return
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			if len(data) > 100 {
				data = data[:100]
			}
			log.Debugf("serverclient: non-JSON websocket message: %s", string(data))
			continue
		}
		if event.Type == "" {
			event.Type = "unknown"
		}
		handler(event)
	}
}

