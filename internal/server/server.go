// Package server exposes the control plane over a framed TCP channel.
package server

import (
	"context"
	"fmt"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/rs/zerolog/log"

	"github.com/plugctl/plugd/internal/control"
	"github.com/plugctl/plugd/internal/logging"
)

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Server wraps the anet TCP server and routes control frames to the plane.
type Server struct {
	address string
	srv     *anetserver.Server
	plane   *control.Plane
}

// NewServer configures and returns the control server instance.
func NewServer(address string, plane *control.Plane) (*Server, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        100,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &Server{address: address, plane: plane}
	handler := anetserver.HandlerFunc(s.handle)
	srv, err := anetserver.NewServer(address, handler, cfg)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}
	s.srv = srv

	return s, nil
}

// Start begins listening for control connections.
func (s *Server) Start() error {
	log.Info().Str("address", s.address).Msg("control server started")
	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

// handle processes one control frame. Requests that open a startup cohort
// hold the connection until the coordinator resolves them; the cohort
// timeout bounds the wait.
func (s *Server) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	start := time.Now()

	id, cmd, perr := parseFrame(data)
	if perr != nil {
		log.Warn().
			Str("event", "bad_control_frame").
			Str("client_ip", client).
			Str("detail", perr.Detail).
			Msg("rejecting control frame")

		return encodeReply(id, control.Result{Err: perr}), nil
	}

	logging.LogControlRequest(client, id, cmd.Sub.String(), cmd.Target)

	res := s.plane.Submit(context.Background(), cmd)

	errCode := 0
	if res.Err != nil {
		errCode = res.Err.Code
	}
	logging.LogControlResponse(client, id, errCode, time.Since(start))

	return encodeReply(id, res), nil
}
