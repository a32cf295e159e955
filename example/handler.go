package main

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/J1407B-K/halt/server"
)

func newServer(logger *zap.Logger, opts ...server.Option) *server.Server {
	mux := http.NewServeMux()
	var srv *server.Server
	mux.HandleFunc("/ping", PongHandler)
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		StatsHandler(w, srv.Stats())
	})
	srv = server.New(mux, opts...)
	logger.Debug("routes registered", zap.Strings("paths", []string{"/ping", "/stats"}))
	return srv
}

func PongHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "pong")
}

type statsBody struct {
	Requests uint64            `json:"requests"`
	Faults   map[string]uint64 `json:"faults"`
}

func StatsHandler(w http.ResponseWriter, s server.Stats) {
	body := statsBody{Requests: s.Requests, Faults: make(map[string]uint64, len(s.Faults))}
	for k, n := range s.Faults {
		body.Faults[k.String()] = n
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}
