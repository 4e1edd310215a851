// Package natsbus embeds a NATS server and provides the client used to fan
// run lifecycle events out to the web gateway and the telegram notifier. The
// bus is plain pub/sub: events are advisory and nothing is persisted.
package natsbus

import (
	"fmt"
	"time"

	"github.com/mtzanidakis/erevna/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

const readyTimeout = 5 * time.Second

type Bus struct {
	server *natsserver.Server
	port   int
}

func New(cfg config.NATSConfig) (*Bus, error) {
	ns, err := natsserver.NewServer(&natsserver.Options{
		Port:   cfg.Port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready after %s", readyTimeout)
	}

	return &Bus{server: ns, port: cfg.Port}, nil
}

func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

func (b *Bus) Port() int {
	return b.port
}

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
