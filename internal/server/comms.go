package server

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/catalog-broker/pkg/commsutil"
	"github.com/morezero/catalog-broker/pkg/router"
)

const commsLogPrefix = "server:comms"

// InfrastructureSubject returns the NATS subject broker messages are served on.
func (s *Server) InfrastructureSubject() string {
	if s.cfg.InfrastructureSubject != "" {
		return s.cfg.InfrastructureSubject
	}
	return commsutil.SubjectInfrastructure
}

// Subscribe serves request/reply broker messages on the infrastructure subject.
func (s *Server) Subscribe(nc *comms.Conn) (*comms.Subscription, error) {
	subject := s.InfrastructureSubject()
	sub, err := nc.Subscribe(subject, s.handleCommsMessage)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", commsLogPrefix, subject))
	return sub, nil
}

func (s *Server) handleCommsMessage(msg *comms.Msg) {
	var resp *router.Response
	bundle, err := commsutil.DecodeBundle(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to decode request: %v", commsLogPrefix, err))
		resp = s.malformed()
	} else {
		resp = s.handleMessage(context.Background(), bundle.HeaderReader(), bundle.PayloadText())
	}

	data, err := commsutil.EncodeResponse(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", commsLogPrefix, err))
		return
	}
	if msg.Reply == "" {
		slog.Debug(fmt.Sprintf("%s - message on %s has no reply subject", commsLogPrefix, msg.Subject))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond: %v", commsLogPrefix, err))
	}
}
