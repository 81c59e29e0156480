package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pingpong/pkg/client"
	"github.com/pingpong/pkg/config"
	"github.com/pingpong/pkg/logging"
	"github.com/pingpong/pkg/metrics"
	"github.com/pingpong/pkg/peer"
	"github.com/pingpong/pkg/server"
	"gopkg.in/alecthomas/kingpin.v2"
)

// options holds the parsed command line.
type options struct {
	configFile    string
	startServer   bool
	serverPort    int
	startClient   bool
	clients       []string
	logLevel      string
	listenAddress string
	telemetryPath string
}

// shortAliases maps the two-letter short flags to their long forms; kingpin
// short flags are single characters.
var shortAliases = map[string]string{
	"-sp": "--server-port",
	"-ch": "--client",
}

// normalizeArgs rewrites "-sp 8080" and "-sp=8080" style arguments.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if long, ok := shortAliases[arg]; ok {
			out = append(out, long)
			continue
		}
		rewritten := false
		for short, long := range shortAliases {
			if strings.HasPrefix(arg, short+"=") {
				out = append(out, long+strings.TrimPrefix(arg, short))
				rewritten = true
				break
			}
		}
		if !rewritten {
			out = append(out, arg)
		}
	}
	return out
}

func newApp(opts *options) *kingpin.Application {
	app := kingpin.New("pingpong", "TCP reachability checker: a PONG responder and a periodic PING prober.")
	app.Flag("config.file", "Path to configuration file.").Default("pingpong.yaml").StringVar(&opts.configFile)
	app.Flag("start-server", "Start the server").Short('s').BoolVar(&opts.startServer)
	app.Flag("server-port", "Port for server to run on (alias -sp, default 80)").IntVar(&opts.serverPort)
	app.Flag("start-client", "Start the client").Short('c').BoolVar(&opts.startClient)
	app.Flag("client", "The host for the client to connect to (alias -ch). May be used multiple times. Format: <hostname|ip>[:port][:loggingname]").StringsVar(&opts.clients)
	app.Flag("log.level", "Log level (debug, info, warn, error).").StringVar(&opts.logLevel)
	app.Flag("web.listen-address", "Address to expose metrics on; empty disables it.").StringVar(&opts.listenAddress)
	app.Flag("web.telemetry-path", "Path under which to expose metrics.").StringVar(&opts.telemetryPath)
	return app
}

// buildConfig loads the config file and lets command line flags override it.
func buildConfig(opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		cfg = config.Default()
	}

	if opts.startServer {
		cfg.Server.Enabled = true
	}
	if opts.serverPort != 0 {
		cfg.Server.Port = opts.serverPort
	}
	if opts.startClient {
		cfg.Client.Enabled = true
	}
	if len(opts.clients) > 0 {
		cfg.Client.Peers = opts.clients
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.listenAddress != "" {
		cfg.Metrics.ListenAddress = opts.listenAddress
	}
	if opts.telemetryPath != "" {
		cfg.Metrics.TelemetryPath = opts.telemetryPath
	}
	return cfg, err
}

// newCollector returns a collector only when the metrics endpoint is
// configured. Recorders are no-ops on a nil collector.
func newCollector(cfg *config.Config) *metrics.Collector {
	if cfg.Metrics.ListenAddress == "" {
		return nil
	}
	return metrics.NewCollector()
}

func main() {
	opts := &options{}
	kingpin.MustParse(newApp(opts).Parse(normalizeArgs(os.Args[1:])))

	cfg, cfgErr := buildConfig(opts)
	logging.Init(cfg.Log.Level)
	if cfgErr != nil {
		logging.Logf("Failed to load config file: %v, using defaults", cfgErr)
	}

	names, err := peer.NewNameTable(cfg.Client.Peers)
	if err != nil {
		logging.Fatalf("%v", err)
	}

	collector := newCollector(cfg)

	if cfg.Server.Enabled {
		logging.Log("Starting server")
		responder := server.NewResponder(cfg, names)
		responder.SetCollector(collector)
		ln, err := responder.Listen()
		if err != nil {
			logging.Fatalf("%v", err)
		}
		go responder.Serve(ln)
	}

	if cfg.Client.Enabled && len(cfg.Client.Peers) > 0 {
		logging.Log("Starting client")
		prober, err := client.NewProber(cfg, cfg.Client.Peers)
		if err != nil {
			logging.Fatalf("%v", err)
		}
		prober.SetCollector(collector)
		go prober.Run(context.Background())
	} else if cfg.Client.Enabled {
		logging.Warnf("Client enabled but no peers configured, not starting client")
	}

	if cfg.Metrics.ListenAddress != "" {
		go func() {
			logging.Logf("[listen] metrics addr=%s path=%s health=/healthz", cfg.Metrics.ListenAddress, cfg.Metrics.TelemetryPath)
			if err := metrics.Serve(cfg.Metrics.ListenAddress, cfg.Metrics.TelemetryPath, metrics.NewRegistry(collector)); err != nil {
				logging.Logf("Metrics endpoint error: %v", err)
			}
		}()
	}

	for {
		time.Sleep(time.Minute)
	}
}
