// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lower

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/tslower/services/lower/ast"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// StreamRequest is one inbound websocket message. Editors send one per
// keystroke batch; ID is echoed so responses can be matched.
type StreamRequest struct {
	ID     string  `json:"id"`
	Mode   string  `json:"mode"`
	Source *string `json:"source"`
	IsTsx  bool    `json:"is_tsx"`
}

// StreamResponse is one outbound websocket message. Exactly one of Result
// and Error is set.
type StreamResponse struct {
	ID     string          `json:"id"`
	Cached bool            `json:"cached,omitempty"`
	Failed bool            `json:"failed,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// HandleStream handles GET /v1/lower/ws.
//
// Description:
//
//	Upgrades to a websocket and answers every StreamRequest with a
//	StreamResponse, in request order. A single writer goroutine owns the
//	connection's write side and also sends keepalive pings.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleStream(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStream")

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conn.SetReadLimit(h.maxWSMessage)
	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	writeCh := make(chan StreamResponse, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					cancel()
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					cancel()
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	served := 0
	for {
		var req StreamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			break
		}
		if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
			break
		}

		resp := h.serveStream(ctx, req)
		select {
		case writeCh <- resp:
			served++
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-writerDone
	logger.Debug("websocket closed", slog.Int("served", served))
}

func (h *Handlers) serveStream(ctx context.Context, req StreamRequest) StreamResponse {
	mode := ast.ModeModule
	switch req.Mode {
	case "", string(ast.ModeModule):
	case string(ast.ModeExpression):
		mode = ast.ModeExpression
	default:
		return StreamResponse{ID: req.ID, Error: "unknown mode " + req.Mode, Code: "INVALID_MODE"}
	}

	res, err := h.svc.Lower(ctx, Request{Mode: mode, Source: req.Source, IsTsx: req.IsTsx})
	if err != nil {
		_, body := inputErrorResponse(err)
		return StreamResponse{ID: req.ID, Error: body.Error, Code: body.Code}
	}
	return StreamResponse{
		ID:     req.ID,
		Cached: res.Cached,
		Failed: res.Failed,
		Result: json.RawMessage(res.Payload),
	}
}
