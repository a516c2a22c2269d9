// Package registry tracks Art-Net nodes discovered on the network and
// bridges endpoint events to persistence and the pubsub feed.
package registry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openlumen/artnode/internal/database/models"
	"github.com/openlumen/artnode/internal/database/repositories"
	"github.com/openlumen/artnode/internal/services/endpoint"
	"github.com/openlumen/artnode/internal/services/pubsub"
	"github.com/openlumen/artnode/pkg/artnet"
)

// Service consumes the endpoint's event stream. It is the single reader of
// endpoint.Events(): inbound DMX and raw traffic fan out through pubsub,
// poll replies additionally land in the node registry.
type Service struct {
	log   *logrus.Entry
	ep    *endpoint.Endpoint
	nodes *repositories.NodeRepository
	ps    *pubsub.PubSub

	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
}

// NewService wires the registry to an endpoint and its stores.
func NewService(ep *endpoint.Endpoint, nodes *repositories.NodeRepository, ps *pubsub.PubSub, log *logrus.Entry) *Service {
	return &Service{
		log:   log,
		ep:    ep,
		nodes: nodes,
		ps:    ps,
	}
}

// Start launches the event consumer. No-op while running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	go s.consume(s.stopChan, s.doneChan)
}

// Stop halts the consumer and waits for it to finish. Idempotent and safe
// to call from several goroutines at once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	done := s.doneChan
	s.mu.Unlock()

	<-done
}

// Discover broadcasts an ArtPoll and returns the nodes heard from within
// the window. Correlation is by wall clock: any reply that arrives while
// the window is open counts.
func (s *Service) Discover(ctx context.Context, window time.Duration) ([]models.Node, error) {
	start := time.Now()
	if err := s.ep.SendPoll(); err != nil {
		return nil, fmt.Errorf("discovery poll failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(window):
	}

	return s.nodes.SeenSince(ctx, start)
}

func (s *Service) consume(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-s.ep.Done():
			return
		case ev := <-s.ep.Events():
			s.handle(ev)
		}
	}
}

func (s *Service) handle(ev endpoint.Event) {
	switch ev.Type {
	case endpoint.EventDMX:
		s.ps.Publish(pubsub.TopicDMXReceived, ev.DMX)
	case endpoint.EventPollReply:
		node := s.record(ev.PollReply, ev.Addr)
		if node != nil {
			s.ps.Publish(pubsub.TopicNodeDiscovered, node)
		}
	case endpoint.EventRaw:
		s.ps.Publish(pubsub.TopicRawData, ev.Raw)
	case endpoint.EventError:
		s.log.WithError(ev.Err).Warn("receive path error")
		s.ps.Publish(pubsub.TopicTransportError, ev.Err)
	}
}

// record upserts one poll reply into the node table. The reported node IP
// wins over the datagram source unless it is absent.
func (s *Service) record(reply *artnet.PollReplyPacket, src *net.UDPAddr) *models.Node {
	address := ""
	if reply.IP != nil && !reply.IP.IsUnspecified() {
		address = reply.IP.String()
	} else if src != nil {
		address = src.IP.String()
	}
	if address == "" {
		return nil
	}

	mac := net.HardwareAddr(reply.MAC[:]).String()
	node, err := s.nodes.Upsert(context.Background(), models.Node{
		Address:    address,
		Port:       int(reply.Port),
		ShortName:  reply.ShortName,
		LongName:   reply.LongName,
		NodeReport: reply.NodeReport,
		MAC:        mac,
		Style:      int(reply.Style),
		NumPorts:   int(reply.NumPorts),
	})
	if err != nil {
		s.log.WithError(err).WithField("address", address).Warn("failed to record node")
		return nil
	}

	s.log.WithFields(logrus.Fields{
		"address": address,
		"name":    reply.ShortName,
	}).Debug("node sighted")
	return node
}
