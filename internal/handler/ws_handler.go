/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains HandleWebSocket, which upgrades the HTTP connection and runs a chat session
over it. The session speaks the same line protocol as the TCP listener, one text frame per line.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"linechat/internal/app/chat"
	"linechat/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc that upgrades the request and serves a chat session.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Info("WebSocket connection established", "remote_addr", logx.AnonymizeIP(r.RemoteAddr))

		deps.Manager.Serve(chat.NewWSTransport(conn, r.RemoteAddr, deps.Config.MaxLineBytes))
	}
}
