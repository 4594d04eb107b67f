package dkg

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/zignig/frosty/frost"
	"github.com/zignig/frosty/frostyrpc"
	"github.com/zignig/frosty/transport"
)

const (
	authRetries  = 5
	pollInterval = 1 * time.Second
	boopRounds   = 4
	boopInterval = 250 * time.Millisecond
)

// runInit authenticates to the coordinator (up to authRetries attempts)
// and then polls PeerCount until the roster reaches n (spec.md §4.4,
// Init).
func (m *Machine) runInit(ctx context.Context) (Phase, error) {
	if m.isCoordinator {
		m.coordClient = frostyrpc.Local(m.server)
	} else {
		conn, err := m.dial(ctx, m.coordinatorAddr, m.coordinatorID)
		if err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "dial coordinator %s", m.coordinatorID)
		}
		c, err := frostyrpc.Remote(ctx, conn)
		if err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "open stream to coordinator %s", m.coordinatorID)
		}
		m.coordClient = c
	}

	if err := retry(authRetries, func() error { return m.coordClient.Auth(ctx, m.token, m.selfAddr) }); err != nil {
		return phaseDone, wrapf(ErrAuthDenied, "authenticate to coordinator %s: %v", m.coordinatorID, err)
	}

	for {
		count, err := m.coordClient.PeerCount(ctx)
		if err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "poll coordinator peer count: %v", err)
		}
		if count >= m.n {
			break
		}
		select {
		case <-ctx.Done():
			return phaseDone, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return PhaseCreateMesh, nil
}

// runCreateMesh snapshots the roster, opens a client to every peer
// (self via the local channel, everyone else lazily), authenticates the
// whole mesh, persists the sealed roster, and warms connections with a
// short Boop loop (spec.md §4.4, CreateMesh).
func (m *Machine) runCreateMesh(ctx context.Context) (Phase, error) {
	peers, err := m.coordClient.Peers(ctx)
	if err != nil {
		return phaseDone, wrapf(ErrTransportConnect, "fetch roster from coordinator: %v", err)
	}

	m.clients[m.selfID] = frostyrpc.Local(m.server)
	for _, info := range peers {
		if info.ID == m.selfID {
			continue
		}
		if info.ID == m.coordinatorID {
			m.clients[info.ID] = m.coordClient
			continue
		}
		conn, err := m.dial(ctx, info.Addr, info.ID)
		if err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "dial peer %s", info.ID)
		}
		c, err := frostyrpc.Remote(ctx, conn)
		if err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "open stream to peer %s", info.ID)
		}
		m.clients[info.ID] = c
	}

	for id, c := range m.clients {
		id, c := id, c
		if id == m.selfID || id == m.coordinatorID {
			// The local client needs no auth call, and the coordinator
			// client already authenticated during Init — a second Auth on
			// the same connection would get it closed (spec.md §4.2).
			continue
		}
		if err := retry(authRetries, func() error { return c.Auth(ctx, m.token, m.selfAddr) }); err != nil {
			return phaseDone, wrapf(ErrAuthDenied, "authenticate to peer %s: %v", id, err)
		}
	}

	rosterIDs := make([]transport.EndpointID, 0, len(peers))
	for _, info := range peers {
		rosterIDs = append(rosterIDs, info.ID)
	}
	if err := m.cfg.SetPeers(rosterIDs); err != nil {
		return phaseDone, wrapf(ErrConfigIO, "persist roster: %v", err)
	}

	for i := 0; i < boopRounds; i++ {
		for id, c := range m.clients {
			if _, err := c.Boop(ctx); err != nil {
				log.Warnf("boop to %s failed during warmup: %v", id, err)
			}
		}
		select {
		case <-ctx.Done():
			return phaseDone, ctx.Err()
		case <-time.After(boopInterval):
		}
	}
	return PhasePart1Send, nil
}

// runPart1Send derives this participant's protocol identifier, runs the
// round-1 primitive, and broadcasts the resulting public package to
// every client in the mesh including self (spec.md §4.4, Part1Send).
func (m *Machine) runPart1Send(ctx context.Context) (Phase, error) {
	m.identifier = frost.DeriveIdentifier(m.selfID)
	secret, pkg, err := frost.GenerateRound1(m.identifier, m.n, m.t)
	if err != nil {
		return phaseDone, wrapf(ErrLibraryError, "generate round1 package: %v", err)
	}
	m.round1Secret = secret

	for id, c := range m.clients {
		if err := c.Part1Send(ctx, pkg); err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "send round1 package to %s: %v", id, err)
		}
	}
	return PhasePart1Fetch, nil
}

// runPart1Fetch polls every client's Part1Count until all report n, then
// collects each peer's view of the round-1 store (spec.md §4.4,
// Part1Fetch).
func (m *Machine) runPart1Fetch(ctx context.Context) (Phase, error) {
	for id, c := range m.clients {
		for {
			count, err := c.Part1Count(ctx)
			if err != nil {
				return phaseDone, wrapf(ErrTransportConnect, "poll round1 count on %s: %v", id, err)
			}
			if count >= m.n {
				break
			}
			select {
			case <-ctx.Done():
				return phaseDone, ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}

	for id, c := range m.clients {
		view, err := c.Part1Fetch(ctx)
		if err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "fetch round1 store from %s: %v", id, err)
		}
		for sender, pkg := range view {
			if err := frost.VerifyRound1Package(pkg); err != nil {
				return phaseDone, wrapf(ErrLibraryError, "round1 package from %s (as seen by %s): %v", sender, id, err)
			}
		}
		m.round1Views[id] = view
	}
	return PhasePart1Check, nil
}

// runPart1Check asserts every peer's view of each sender's round-1
// package is byte-identical (spec.md §4.4, Part1Check; §8 invariant
// "round1[p][s] is byte-equal to round1[s][s]").
func (m *Machine) runPart1Check(ctx context.Context) (Phase, error) {
	selfView, ok := m.round1Views[m.selfID]
	if !ok {
		return phaseDone, wrapf(ErrMissingPackage, "no self round1 view recorded")
	}
	for sender, selfPkg := range selfView {
		want := selfPkg.Bytes()
		for observer, view := range m.round1Views {
			got, ok := view[sender]
			if !ok {
				return phaseDone, wrapf(ErrMissingPackage, "peer %s has no round1 package from %s", observer, sender)
			}
			if !bytes.Equal(got.Bytes(), want) {
				return phaseDone, wrapf(ErrRound1Mismatch, "peer %s's view of sender %s diverges from self's view", observer, sender)
			}
		}
	}
	return PhasePart2Build, nil
}

// idByEndpoint derives this participant's own identifier map: for every
// known peer endpoint id, the derived protocol identifier that will tag
// its round-1/round-2 packages (spec.md §9, "identifier derivation
// asymmetry": always keep the endpoint identifier as the canonical key).
func (m *Machine) idByEndpoint() map[string]transport.EndpointID {
	out := make(map[string]transport.EndpointID, len(m.round1Views[m.selfID]))
	for endpoint := range m.round1Views[m.selfID] {
		out[frost.DeriveIdentifier(endpoint).Key()] = endpoint
	}
	return out
}

// runPart2Build runs the round-2 primitive over this participant's
// verified round-1 view (excluding self), producing per-recipient
// confidential packages (spec.md §4.4, Part2Build).
func (m *Machine) runPart2Build(ctx context.Context) (Phase, error) {
	selfView := m.round1Views[m.selfID]
	var others []frost.Identifier
	for endpoint, pkg := range selfView {
		if endpoint == m.selfID {
			continue
		}
		others = append(others, pkg.Sender)
	}

	secret, packages, err := frost.GenerateRound2(m.identifier, m.round1Secret, others)
	if err != nil {
		return phaseDone, wrapf(ErrLibraryError, "generate round2 packages: %v", err)
	}
	m.round2Secret = secret
	m.pendingRound2 = packages
	return PhasePart2Send, nil
}

// runPart2Send delivers each round-2 package to its recipient's client
// and gives delivery a moment to settle (spec.md §4.4, Part2Send).
func (m *Machine) runPart2Send(ctx context.Context) (Phase, error) {
	idToEndpoint := m.idByEndpoint()
	for identKey, pkg := range m.pendingRound2 {
		endpoint, ok := idToEndpoint[identKey]
		if !ok {
			return phaseDone, wrapf(ErrMissingPackage, "no endpoint known for recipient identifier")
		}
		c, ok := m.clients[endpoint]
		if !ok {
			return phaseDone, wrapf(ErrMissingPackage, "no client for recipient %s", endpoint)
		}
		if err := c.Part2Send(ctx, pkg); err != nil {
			return phaseDone, wrapf(ErrTransportConnect, "send round2 package to %s: %v", endpoint, err)
		}
	}
	m.pendingRound2 = nil

	select {
	case <-ctx.Done():
		return phaseDone, ctx.Err()
	case <-time.After(1 * time.Second):
	}
	return PhasePart2Fetch, nil
}

// runPart2Fetch calls Part2Fetch on the local client only — the single
// most important security invariant in the design (spec.md §9).
func (m *Machine) runPart2Fetch(ctx context.Context) (Phase, error) {
	local, ok := m.clients[m.selfID]
	if !ok {
		return phaseDone, wrapf(ErrMissingPackage, "no local client registered")
	}
	items, err := local.Part2Fetch(ctx)
	if err != nil {
		if errors.Is(err, frostyrpc.ErrRestricted) {
			return phaseDone, wrapf(ErrRestrictedAccess, "local Part2Fetch refused: %v", err)
		}
		return phaseDone, wrapf(ErrTransportConnect, "local Part2Fetch: %v", err)
	}
	m.round2 = items
	return PhasePart3Build, nil
}

// runPart3Build feeds the round-2 secret, this participant's round-1
// view, and the fetched round-2 packages into the round-3 primitive,
// then writes the resulting triple to config (spec.md §4.4, Part3Build).
func (m *Machine) runPart3Build(ctx context.Context) (Phase, error) {
	round1ByIdentifier := make(map[string]frost.Round1Package, len(m.round1Views[m.selfID]))
	for _, pkg := range m.round1Views[m.selfID] {
		round1ByIdentifier[pkg.Sender.Key()] = pkg
	}
	round2ByIdentifier := make(map[string]frost.Round2Package, len(m.round2))
	for _, pkg := range m.round2 {
		round2ByIdentifier[pkg.Sender.Key()] = pkg
	}

	keyShare, publicShare, verifyingKey, err := frost.FinalizeRound3(m.identifier, m.round2Secret, round1ByIdentifier, round2ByIdentifier)
	if err != nil {
		return phaseDone, wrapf(ErrLibraryError, "finalize round3: %v", err)
	}

	if err := m.cfg.SetPackages(keyShare.Bytes(), publicShare.Bytes(), verifyingKey); err != nil {
		return phaseDone, wrapf(ErrConfigIO, "persist final share triple: %v", err)
	}

	m.result = &Result{KeyShare: keyShare, PublicShare: publicShare, VerifyingKey: verifyingKey}
	return phaseDone, nil
}
