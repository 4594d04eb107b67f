package dkg

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/zignig/frosty/frost"
	"github.com/zignig/frosty/frostycfg"
	"github.com/zignig/frosty/frostyrpc"
	"github.com/zignig/frosty/internal/obs"
	"github.com/zignig/frosty/transport"
)

var log = obs.Logger("dkg")

// Phase is one state of the tagged phase enum spec.md §9 asks for: each
// phase function owns the machine and returns the next phase or a fatal
// error; a single top-level loop in Run dispatches.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseCreateMesh
	PhasePart1Send
	PhasePart1Fetch
	PhasePart1Check
	PhasePart2Build
	PhasePart2Send
	PhasePart2Fetch
	PhasePart3Build
	phaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "Init"
	case PhaseCreateMesh:
		return "CreateMesh"
	case PhasePart1Send:
		return "Part1Send"
	case PhasePart1Fetch:
		return "Part1Fetch"
	case PhasePart1Check:
		return "Part1Check"
	case PhasePart2Build:
		return "Part2Build"
	case PhasePart2Send:
		return "Part2Send"
	case PhasePart2Fetch:
		return "Part2Fetch"
	case PhasePart3Build:
		return "Part3Build"
	default:
		return "Done"
	}
}

// Dialer opens a connection to addr, verifying it presents want's
// identity (the signature of transport.Endpoint.Dial itself — the DKG
// takes this as a dependency rather than resolving addresses itself;
// address discovery belongs to the transport layer, which spec.md §1
// treats as an external collaborator).
type Dialer func(ctx context.Context, addr string, want transport.EndpointID) (*transport.Conn, error)

// Result is the final share triple spec.md §4.4's Part3Build produces.
type Result struct {
	KeyShare     frost.KeyShare
	PublicShare  frost.PublicShare
	VerifyingKey ed25519.PublicKey
}

// Machine is the per-participant DKG state machine (spec.md §2,
// "DistributedKeyGeneration"). One Machine drives one participant
// through Init..Part3Build.
type Machine struct {
	cfg    *frostycfg.Config
	server *frostyrpc.Server

	selfID        transport.EndpointID
	selfAddr      string
	coordinatorID transport.EndpointID
	coordinatorAddr string
	isCoordinator bool
	token         string
	n, t          int
	dial          Dialer

	coordClient *frostyrpc.Client
	clients     map[transport.EndpointID]*frostyrpc.Client

	identifier   frost.Identifier
	round1Secret frost.Round1Secret
	// round1Views[observer][sender] is one peer's reported view of the
	// round-1 store (spec.md §4.4, Part1Fetch).
	round1Views map[transport.EndpointID]map[transport.EndpointID]frost.Round1Package

	round2Secret frost.Round2Secret
	// round2[sender] is this participant's own received view, fetched
	// locally only (spec.md §4.4, Part2Fetch).
	round2 map[transport.EndpointID]frost.Round2Package
	// pendingRound2 holds Part2Build's output between PhasePart2Build and
	// PhasePart2Send, keyed by recipient identifier.
	pendingRound2 map[string]frost.Round2Package

	result *Result
}

// New builds a Machine. server must already be reachable at selfAddr
// (the DKG reaches its own server through the local client, spec.md §9
// "local vs remote client polymorphism", but still reports selfAddr to
// peers so they can dial back; only the coordinator calls Auth on that
// local client, during Init). coordinatorAddr is ignored when
// isCoordinator is true.
func New(cfg *frostycfg.Config, server *frostyrpc.Server, selfID transport.EndpointID, selfAddr string, coordinatorID transport.EndpointID, coordinatorAddr string, isCoordinator bool, token string, n, t int, dial Dialer) *Machine {
	return &Machine{
		cfg:             cfg,
		server:          server,
		selfID:          selfID,
		selfAddr:        selfAddr,
		coordinatorID:   coordinatorID,
		coordinatorAddr: coordinatorAddr,
		isCoordinator:   isCoordinator,
		token:           token,
		n:               n,
		t:               t,
		dial:            dial,
		clients:         make(map[transport.EndpointID]*frostyrpc.Client),
		round1Views:     make(map[transport.EndpointID]map[transport.EndpointID]frost.Round1Package),
		round2:          make(map[transport.EndpointID]frost.Round2Package),
	}
}

// Run dispatches phases until Part3Build completes or a phase returns a
// fatal error (spec.md §4.4's terminal states: "success... or fatal
// error... There is no rollback").
func (m *Machine) Run(ctx context.Context) (*Result, error) {
	phase := PhaseInit
	for phase != phaseDone {
		log.Debugf("entering phase %s", phase)
		var next Phase
		var err error
		switch phase {
		case PhaseInit:
			next, err = m.runInit(ctx)
		case PhaseCreateMesh:
			next, err = m.runCreateMesh(ctx)
		case PhasePart1Send:
			next, err = m.runPart1Send(ctx)
		case PhasePart1Fetch:
			next, err = m.runPart1Fetch(ctx)
		case PhasePart1Check:
			next, err = m.runPart1Check(ctx)
		case PhasePart2Build:
			next, err = m.runPart2Build(ctx)
		case PhasePart2Send:
			next, err = m.runPart2Send(ctx)
		case PhasePart2Fetch:
			next, err = m.runPart2Fetch(ctx)
		case PhasePart3Build:
			next, err = m.runPart3Build(ctx)
		default:
			err = fmt.Errorf("dkg: unknown phase %d", phase)
		}
		if err != nil {
			log.Errorf("phase %s failed: %v", phase, err)
			return nil, err
		}
		phase = next
	}
	return m.result, nil
}
