package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/catalog-broker/pkg/commsutil"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/ids"
)

const commsTestPrefix = "server:comms_test"

// startComms starts an embedded NATS server on a random port.
func startComms(t *testing.T) *comms.Conn {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create NATS server: %v", commsTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - NATS server failed to start", commsTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func request(t *testing.T, nc *comms.Conn, subject string, data []byte) (*ids.Envelope, *commsutil.Bundle) {
	t.Helper()
	msg, err := nc.Request(subject, data, 10*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", commsTestPrefix, err)
	}
	bundle, err := commsutil.DecodeBundle(msg.Data)
	if err != nil {
		t.Fatalf("%s - DecodeBundle: %v", commsTestPrefix, err)
	}
	env, err := ids.ParseReader(bundle.HeaderReader())
	if err != nil {
		t.Fatalf("%s - response header: %v", commsTestPrefix, err)
	}
	return env, bundle
}

func TestComms_ConnectorUpdatePublishesEvent(t *testing.T) {
	nc := startComms(t)
	s, _ := testServer(t, nil, events.NewCommsPublisher(nc, nil))
	sub, err := s.Subscribe(nc)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", commsTestPrefix, err)
	}
	defer sub.Unsubscribe()

	changes := make(chan *comms.Msg, 4)
	evSub, err := nc.ChanSubscribe(commsutil.SubjectNodesChanged, changes)
	if err != nil {
		t.Fatalf("%s - ChanSubscribe: %v", commsTestPrefix, err)
	}
	defer evSub.Unsubscribe()

	data, err := commsutil.EncodeRequest(header(ids.TypeConnectorUpdate, "https://connector.example.com/m/1"), ptr(connectorSelfDescription))
	if err != nil {
		t.Fatalf("%s - EncodeRequest: %v", commsTestPrefix, err)
	}
	env, bundle := request(t, nc, commsutil.SubjectInfrastructure, data)
	if env.Type != ids.TypeMessageProcessed {
		t.Fatalf("%s - Type = %q, reason %q", commsTestPrefix, env.Type, reason(env))
	}
	if bundle.PayloadText() != nil {
		t.Errorf("%s - notification must have no payload", commsTestPrefix)
	}

	select {
	case msg := <-changes:
		var ev events.NodeChangedEvent
		if err := commsutil.DecodePayload(msg.Data, &ev); err != nil {
			t.Fatalf("%s - decode event: %v", commsTestPrefix, err)
		}
		if ev.Action != events.ActionRegistered || ev.Node.Name != "https://connector.example.com" {
			t.Errorf("%s - event = %+v", commsTestPrefix, ev)
		}
		if ev.MessageID != "https://connector.example.com/m/1" {
			t.Errorf("%s - event MessageID = %q", commsTestPrefix, ev.MessageID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no node change event received", commsTestPrefix)
	}
}

func TestComms_QueryPayload(t *testing.T) {
	nc := startComms(t)
	cfg := testConfig()
	cfg.InfrastructureSubject = "test.broker.infrastructure"
	s, _ := testServer(t, cfg, nil)
	sub, err := s.Subscribe(nc)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", commsTestPrefix, err)
	}
	defer sub.Unsubscribe()

	data, _ := commsutil.EncodeRequest(header(ids.TypeQuery, "https://c/m/1"), nil)
	env, bundle := request(t, nc, "test.broker.infrastructure", data)
	if env.Type != ids.TypeResult {
		t.Fatalf("%s - Type = %q", commsTestPrefix, env.Type)
	}
	if p := bundle.PayloadText(); p == nil || *p != "[]" {
		t.Errorf("%s - payload = %v, want []", commsTestPrefix, p)
	}
}

func TestComms_InvalidBundle(t *testing.T) {
	nc := startComms(t)
	s, _ := testServer(t, nil, nil)
	sub, err := s.Subscribe(nc)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", commsTestPrefix, err)
	}
	defer sub.Unsubscribe()

	for name, data := range map[string][]byte{
		"not json":  []byte("not json"),
		"no header": []byte(`{"payload":"x"}`),
	} {
		env, _ := request(t, nc, commsutil.SubjectInfrastructure, data)
		if reason(env) != ids.ReasonMalformedMessage || env.CorrelationMessage != "" {
			t.Errorf("%s - %s: reason %q correlation %q", commsTestPrefix, name, reason(env), env.CorrelationMessage)
		}
	}
}

func TestComms_ConcurrentRequests(t *testing.T) {
	nc := startComms(t)
	s, _ := testServer(t, nil, nil)
	sub, err := s.Subscribe(nc)
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", commsTestPrefix, err)
	}
	defer sub.Unsubscribe()

	types := []string{ids.TypeQuery, ids.TypeDescriptionRequest, ids.TypeConnectorUnavailable, "ids:ArtifactRequestMessage"}
	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("https://c/m/%d", i)
			data, _ := commsutil.EncodeRequest(header(types[i%len(types)], id), nil)
			msg, err := nc.Request(commsutil.SubjectInfrastructure, data, 10*time.Second)
			if err != nil {
				errs <- err.Error()
				return
			}
			bundle, err := commsutil.DecodeBundle(msg.Data)
			if err != nil {
				errs <- err.Error()
				return
			}
			env, err := ids.ParseReader(bundle.HeaderReader())
			if err != nil {
				errs <- err.Error()
				return
			}
			if env.CorrelationMessage != id {
				errs <- "correlation " + env.CorrelationMessage + " != " + id
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("%s - %s", commsTestPrefix, e)
	}
}
