package bank

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickgao/auction-house/internal/protocol"
)

// Register connects t, announces the house at host:port and returns the
// id the bank assigns. The connection stays open for the Outbox.
func Register(ctx context.Context, t Transport, host string, port int) (string, error) {
	if err := t.Connect(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	if err := t.WriteLine(protocol.Register(host, port)); err != nil {
		t.Close()
		return "", fmt.Errorf("%w: send: %w", ErrRegistration, err)
	}

	line, err := t.ReadLine(ctx)
	if err != nil {
		t.Close()
		return "", fmt.Errorf("%w: read id: %w", ErrRegistration, err)
	}

	id := strings.TrimSpace(line)
	if id == "" || strings.ContainsAny(id, " \t") {
		t.Close()
		return "", fmt.Errorf("%w: invalid id %q", ErrRegistration, line)
	}
	return id, nil
}
