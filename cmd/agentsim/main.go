// agentsim connects to an auction house as one agent, prints the open
// items and keeps bidding on one of them until it wins, runs out of
// budget or is interrupted.
//
// Usage: go run ./cmd/agentsim --addr localhost:7000 --agent alice --item 0 --budget 200
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rickgao/auction-house/internal/model"
	"github.com/rickgao/auction-house/internal/protocol"
)

func main() {
	addr := pflag.String("addr", "localhost:7000", "auction house address")
	agentID := pflag.String("agent", "agent-1", "agent id announced at handshake")
	itemID := pflag.Int64("item", 0, "item to bid on")
	step := pflag.Int64("step", 5, "amount added over the current bid")
	budget := pflag.Int64("budget", 200, "highest amount this agent will bid")
	interval := pflag.Duration("interval", 2*time.Second, "time between bidding rounds")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	conn, err := net.DialTimeout("tcp", *addr, 10*time.Second)
	if err != nil {
		logger.Error("failed to connect", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	c := newClient(conn)
	houseID, err := c.handshake(model.AgentID(*agentID))
	if err != nil {
		logger.Error("handshake failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "house_id", houseID, "agent", *agentID)

	b := bidder{
		client:   c,
		itemID:   model.ItemID(*itemID),
		step:     *step,
		budget:   *budget,
		interval: *interval,
		logger:   logger,
	}
	if err := b.run(ctx); err != nil {
		logger.Error("session ended", "error", err)
	}

	if err := c.send(protocol.KeyExit); err != nil {
		logger.Debug("exit not sent", "error", err)
	}
	fmt.Println("bye")
}
