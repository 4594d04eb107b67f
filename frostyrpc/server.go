package frostyrpc

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zignig/frosty/internal/obs"
	"github.com/zignig/frosty/transport"
)

var log = obs.Logger("frostyrpc")

// Server holds the mesh-wide shared state spec.md §2 assigns to
// FrostyServer: the peer roster, the round-1 and round-2 package stores,
// and the liveness counter. Every accepted connection's handler goroutine
// shares one *Server; each store is guarded by its own short critical
// section (spec.md §5), never held across an RPC suspension point.
type Server struct {
	id        transport.EndpointID
	token     string
	maxShares int

	rosterMu sync.Mutex
	roster   map[transport.EndpointID]string

	round1Mu sync.Mutex
	round1   map[transport.EndpointID][]byte // sender -> encoded Round1Package, last-write-wins

	round2Mu sync.Mutex
	round2   map[transport.EndpointID][]byte // sender -> encoded Round2Package addressed to this server's own participant

	boopCounter atomic.Int64
}

// NewServer creates a server for the given identity, shared auth token,
// the address this server itself listens on, and the ticket's max_shares
// (used only to log a warning if the roster outgrows it — spec.md §4.2:
// "If peer counter crosses max_shares the server logs a warning but does
// not reject"), with its own entry already seeded into the roster
// (spec.md §4.2: the hosting participant is always its own first peer).
func NewServer(id transport.EndpointID, token, selfAddr string, maxShares int) *Server {
	s := &Server{
		id:        id,
		token:     token,
		maxShares: maxShares,
		roster:    map[transport.EndpointID]string{id: selfAddr},
		round1:    make(map[transport.EndpointID][]byte),
		round2:    make(map[transport.EndpointID][]byte),
	}
	return s
}

// ID is this server's own endpoint identifier, used by Part2Fetch's
// restricted-access check (spec.md §4.2).
func (s *Server) ID() transport.EndpointID { return s.id }

// Accept runs the per-connection accept-side state machine of spec.md
// §4.2: Unauth until a valid Auth, then every subsequent request is
// dispatched to the shared stores. It returns once the connection closes.
func (s *Server) Accept(ctx context.Context, conn *transport.Conn) error {
	stream, err := conn.Stream(ctx, false)
	if err != nil {
		return fmt.Errorf("frostyrpc: accept stream: %w", err)
	}
	caller := conn.RemoteID()
	r := bufio.NewReader(stream)
	authed := false

	for {
		frame, err := readFrame(r)
		if err != nil {
			log.Debugf("connection from %s closed: %v", caller, err)
			return nil
		}
		if len(frame) == 0 {
			continue
		}
		t := msgType(frame[0])
		body := frame[1:]

		if t != msgAuth && !authed {
			log.Warnf("unauthed request %d from %s", t, caller)
			conn.Close(1, "unauthed")
			return nil
		}
		if t == msgAuth && authed {
			log.Warnf("duplicate auth from %s", caller)
			conn.Close(1, "invalid message")
			return nil
		}

		switch t {
		case msgAuth:
			token, addr, decodeErr := decodeAuthRequest(body)
			var authErr error
			if decodeErr != nil {
				authErr = decodeErr
			} else {
				authErr = s.doAuth(caller, token, addr)
			}
			if err := writeFrame(stream, encodeAuthReply(authErr)); err != nil {
				return err
			}
			if authErr != nil {
				conn.Close(1, "permission denied")
				return nil
			}
			authed = true
		case msgPeers:
			for _, peer := range s.doPeers() {
				if err := writeFrame(stream, encodePeerInfo(peer)); err != nil {
					return err
				}
			}
			if err := writeFrame(stream, nil); err != nil {
				return err
			}
		case msgPeerCount:
			if err := writeVarintFrame(stream, uint64(s.doPeerCount())); err != nil {
				return err
			}
		case msgBoop:
			if err := writeVarintFrame(stream, uint64(s.doBoop())); err != nil {
				return err
			}
		case msgPart1Send:
			s.doPart1Send(caller, body)
			if err := writeFrame(stream, nil); err != nil {
				return err
			}
		case msgPart1Count:
			if err := writeVarintFrame(stream, uint64(s.doPart1Count())); err != nil {
				return err
			}
		case msgPart1Fetch:
			for sender, raw := range s.doPart1Fetch() {
				item := append(endpointIDBytes(sender), raw...)
				if err := writeFrame(stream, item); err != nil {
					return err
				}
			}
			if err := writeFrame(stream, nil); err != nil {
				return err
			}
		case msgPart2Send:
			s.doPart2Send(caller, body)
			if err := writeFrame(stream, nil); err != nil {
				return err
			}
		case msgPart2Fetch:
			items, restricted := s.doPart2Fetch(caller)
			if restricted {
				if err := writeFrame(stream, encodeFetchErr("restricted: Part2Fetch is local-only")); err != nil {
					return err
				}
				if err := writeFrame(stream, nil); err != nil {
					return err
				}
				break
			}
			for sender, raw := range items {
				if err := writeFrame(stream, encodeFetchOK(sender, raw)); err != nil {
					return err
				}
			}
			if err := writeFrame(stream, nil); err != nil {
				return err
			}
		default:
			log.Warnf("unknown request type %d from %s", t, caller)
			conn.Close(1, "invalid message")
			return nil
		}
	}
}

// --- internal dispatch methods shared by the wire accept loop and the
// in-process local client (spec.md §9: "cloneable handles / shared
// ownership"). ---

func (s *Server) doAuth(caller transport.EndpointID, token, addr string) error {
	if token != s.token {
		return fmt.Errorf("frostyrpc: auth denied for %s", caller)
	}
	s.rosterMu.Lock()
	s.roster[caller] = addr
	n := len(s.roster)
	s.rosterMu.Unlock()
	log.Infof("peer %s authenticated (%d peers so far)", caller, n)
	if s.maxShares > 0 && n > s.maxShares {
		log.Warnf("roster has %d peers, exceeding max_shares %d", n, s.maxShares)
	}
	return nil
}

func (s *Server) doPeers() []PeerInfo {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	out := make([]PeerInfo, 0, len(s.roster))
	for id, addr := range s.roster {
		out = append(out, PeerInfo{ID: id, Addr: addr})
	}
	return out
}

func (s *Server) doPeerCount() int {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	return len(s.roster)
}

func (s *Server) doBoop() int64 {
	return s.boopCounter.Add(1)
}

func (s *Server) doPart1Send(sender transport.EndpointID, raw []byte) {
	s.round1Mu.Lock()
	s.round1[sender] = append([]byte(nil), raw...)
	s.round1Mu.Unlock()
}

func (s *Server) doPart1Count() int {
	s.round1Mu.Lock()
	defer s.round1Mu.Unlock()
	return len(s.round1)
}

func (s *Server) doPart1Fetch() map[transport.EndpointID][]byte {
	s.round1Mu.Lock()
	defer s.round1Mu.Unlock()
	out := make(map[transport.EndpointID][]byte, len(s.round1))
	for k, v := range s.round1 {
		out[k] = v
	}
	return out
}

func (s *Server) doPart2Send(sender transport.EndpointID, raw []byte) {
	s.round2Mu.Lock()
	s.round2[sender] = append([]byte(nil), raw...)
	s.round2Mu.Unlock()
}

// doPart2Fetch implements spec.md §4.2's single most important security
// invariant: only this server's own local process may read back the
// round-2 packages addressed to it. restricted is true when caller is
// not s.id, in which case the items map must be ignored.
func (s *Server) doPart2Fetch(caller transport.EndpointID) (items map[transport.EndpointID][]byte, restricted bool) {
	if caller != s.id {
		return nil, true
	}
	s.round2Mu.Lock()
	defer s.round2Mu.Unlock()
	out := make(map[transport.EndpointID][]byte, len(s.round2))
	for k, v := range s.round2 {
		out[k] = v
	}
	return out, false
}
