// Command spice-wsd is a minimal demo host for the WebSocket framing core
// and channel fan-out core: it accepts TCP connections, performs the
// WebSocket Upgrade handshake, binds each connection to a ChannelClient on
// a single demo echo Channel, and relays binary payloads back to the
// sender through the pipe/broadcast machinery.
package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/symphonicityy/spice/internal/channelhub"
	"github.com/symphonicityy/spice/internal/client"
	"github.com/symphonicityy/spice/internal/config"
	"github.com/symphonicityy/spice/internal/wsframe"
)

const handshakeBufSize = 4096

func main() {
	cmd := &cli.Command{
		Name:  "spice-wsd",
		Usage: "demo host for the WebSocket framing core and channel fan-out core",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: "", Usage: "listen address, overrides config.listen_addr"},
			&cli.StringFlag{Name: "config", Value: "", Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "log-level", Value: "", Usage: "debug|info|warn|error, overrides config.log_level"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "spice-wsd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := &config.Config{}
	if path := cmd.String("config"); path != "" {
		loaded, err := config.ParseFile(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		var err error
		cfg, err = config.Parse([]byte("{}"))
		if err != nil {
			return err
		}
	}
	if v := cmd.String("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log_level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(level).
		With().Timestamp().Logger()

	hooks := &echoHooks{log: log}
	channel, err := channelhub.NewChannel(1, 0, channelhub.ThreadID(1), 0, hooks, channelhub.ClientCallbacks{}, log)
	if err != nil {
		return fmt.Errorf("constructing demo channel: %w", err)
	}
	for _, c := range cfg.Caps {
		if c.Channel != channel.Type {
			continue
		}
		if c.Common {
			channel.SetCommonCap(c.Bit)
		} else {
			channel.SetCap(c.Bit)
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Close()
	log.Info().Str("addr", cfg.ListenAddr).Msg("spice-wsd: listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error().Err(err).Msg("spice-wsd: accept failed")
			return err
		}
		go serveConn(conn, channel, log)
	}
}

func serveConn(conn net.Conn, channel *channelhub.Channel, log zerolog.Logger) {
	defer conn.Close()
	connLog := log.With().Str("conn_id", uuid.NewString()).Str("remote", conn.RemoteAddr().String()).Logger()

	prefix := make([]byte, handshakeBufSize)
	n, err := conn.Read(prefix)
	if err != nil {
		connLog.Warn().Err(err).Msg("spice-wsd: reading handshake prefix")
		return
	}
	hs, err := wsframe.DoHandshake(prefix[:n], conn.Read, connLog)
	if err != nil {
		connLog.Warn().Err(err).Msg("spice-wsd: handshake rejected")
		return
	}
	if _, err := conn.Write(hs.Response); err != nil {
		connLog.Warn().Err(err).Msg("spice-wsd: writing handshake response")
		return
	}

	transport := &netTransport{conn: conn}
	stream := wsframe.NewStream(transport, connLog)
	cc, err := channelhub.NewChannelClient(channel, transport, stream, connLog)
	if err != nil {
		connLog.Warn().Err(err).Msg("spice-wsd: configuring socket")
		return
	}

	server := &noopDispatcher{}
	cl := client.New(channelhub.ThreadID(1), server, connLog)
	cl.AddChannel(cc)
	defer cl.Destroy()

	channel.Add(cc, channelhub.ThreadID(1))
	defer channel.Remove(cc, channelhub.ThreadID(1))

	connLog.Info().Msg("spice-wsd: client connected")
	for !stream.Closed() {
		if err := cc.Receive(); err != nil {
			connLog.Debug().Err(err).Msg("spice-wsd: receive ended")
			break
		}
		cc.Push()
	}
	connLog.Info().
		Int64("bytes_received", cc.Stats.BytesReceived()).
		Int64("bytes_sent", cc.Stats.BytesSent()).
		Msg("spice-wsd: client disconnected")
}

// noopDispatcher discards migration signals; the demo host never migrates.
type noopDispatcher struct{}

func (noopDispatcher) SignalMigrateComplete(*client.Client) {}
func (noopDispatcher) PostMigrationDone(*client.Client)     {}
