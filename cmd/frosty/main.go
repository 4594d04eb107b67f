// Command frosty runs one participant of a threshold Ed25519 DKG: either
// the coordinator ("server") or a joiner ("client"), per spec.md §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zignig/frosty/dkg"
	"github.com/zignig/frosty/frostycfg"
	"github.com/zignig/frosty/frostyrpc"
	"github.com/zignig/frosty/internal/obs"
	"github.com/zignig/frosty/ticket"
	"github.com/zignig/frosty/transport"
)

var log = obs.Logger("cmd")

var verbosity int

func main() {
	root := &cobra.Command{
		Use:   "frosty",
		Short: "threshold Ed25519 distributed key generation",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.SetVerbosity(verbosity)
		},
	}
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.AddCommand(serverCmd(), clientCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "frosty:", err)
		os.Exit(1)
	}
}

func serverCmd() *cobra.Command {
	var max, min uint16
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "server <token>",
		Short: "become coordinator and print a ticket for joiners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), args[0], max, min, listenAddr)
		},
	}
	cmd.Flags().Uint16Var(&max, "max", 3, "maximum share count (n)")
	cmd.Flags().Uint16Var(&min, "min", 2, "minimum share threshold (t)")
	cmd.Flags().StringVar(&listenAddr, "listen", ":0", "address to listen on")
	return cmd
}

func clientCmd() *cobra.Command {
	var coordinatorAddr, listenAddr string
	cmd := &cobra.Command{
		Use:   "client <ticket>",
		Short: "become joiner, using a ticket printed by a coordinator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), args[0], coordinatorAddr, listenAddr)
		},
	}
	// spec.md's ticket carries only {coordinator id, token, n, t}; address
	// discovery is explicitly out of scope (spec.md §1), so the coordinator's
	// dial address has to reach this process some other way.
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator-addr", "", "network address of the coordinator named in the ticket")
	cmd.Flags().StringVar(&listenAddr, "listen", ":0", "address this participant listens on for mesh peers")
	cmd.MarkFlagRequired("coordinator-addr")
	return cmd
}

// loadOrCreateConfig loads frosty.toml from the working directory, or
// creates a fresh one holding a new identity on first run (spec.md §4.5,
// "new(secret) constructs with identity only").
func loadOrCreateConfig() (*frostycfg.Config, error) {
	cfg, err := frostycfg.Load()
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load frosty.toml: %w", err)
	}
	id, err := transport.NewIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return frostycfg.New(id)
}

func acceptLoop(ctx context.Context, ep *transport.Endpoint, server *frostyrpc.Server) {
	for {
		conn, err := ep.Accept(ctx)
		if err != nil {
			return
		}
		go func() {
			if err := server.Accept(ctx, conn); err != nil {
				log.Debugf("connection from %s ended: %v", conn.RemoteID(), err)
			}
		}()
	}
}

func dialer(ep *transport.Endpoint) dkg.Dialer {
	return func(ctx context.Context, addr string, want transport.EndpointID) (*transport.Conn, error) {
		return ep.Dial(ctx, addr, want)
	}
}

func runServer(ctx context.Context, token string, max, min uint16, listenAddr string) error {
	cfg, err := loadOrCreateConfig()
	if err != nil {
		return err
	}
	selfID := cfg.Identity.EndpointID()

	ep := transport.NewEndpoint(cfg.Identity, frostyrpc.ALPN)
	if err := ep.Listen(listenAddr); err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	server := frostyrpc.NewServer(selfID, token, ep.Addr(), int(max))

	tk, err := ticket.New(selfID, token, max, min)
	if err != nil {
		return fmt.Errorf("build ticket: %w", err)
	}
	serialized, err := tk.Serialize()
	if err != nil {
		return fmt.Errorf("serialize ticket: %w", err)
	}

	fmt.Println("--- frosty ticket (share with joiners) ---")
	fmt.Println(serialized)
	fmt.Println("-------------------------------------------")

	acceptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go acceptLoop(acceptCtx, ep, server)

	m := dkg.New(cfg, server, selfID, ep.Addr(), selfID, ep.Addr(), true, token, int(max), int(min), dialer(ep))
	result, err := m.Run(ctx)
	if err != nil {
		return fmt.Errorf("dkg failed: %w", err)
	}
	fmt.Printf("dkg complete; verifying key %x\n", result.VerifyingKey)
	return nil
}

func runClient(ctx context.Context, ticketStr, coordinatorAddr, listenAddr string) error {
	tk, err := ticket.Parse(ticketStr)
	if err != nil {
		return fmt.Errorf("%w: %v", dkg.ErrTicketParse, err)
	}
	cfg, err := loadOrCreateConfig()
	if err != nil {
		return err
	}
	selfID := cfg.Identity.EndpointID()

	ep := transport.NewEndpoint(cfg.Identity, frostyrpc.ALPN)
	if err := ep.Listen(listenAddr); err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	server := frostyrpc.NewServer(selfID, tk.Token, ep.Addr(), int(tk.MaxShares))

	acceptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go acceptLoop(acceptCtx, ep, server)

	m := dkg.New(cfg, server, selfID, ep.Addr(), tk.Coordinator, coordinatorAddr, false, tk.Token, int(tk.MaxShares), int(tk.MinShares), dialer(ep))
	result, err := m.Run(ctx)
	if err != nil {
		return fmt.Errorf("dkg failed: %w", err)
	}
	fmt.Printf("dkg complete; verifying key %x\n", result.VerifyingKey)
	return nil
}
