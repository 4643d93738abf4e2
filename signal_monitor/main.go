package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"can-dbc-core/dbc"
	"can-dbc-core/utils"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "Optional JSON config file")
		iface      = flag.String("iface", "vcan0", "SocketCAN interface name")
		dbPath     = flag.String("dbc", "", "Path to a .dbc file or can_map.csv")
		replay     = flag.String("replay", "", "Decode a candump log instead of the interface")
		format     = flag.String("format", "json", "Output format: json|cbor")
		outPath    = flag.String("out", "", "Output file (stdout when empty)")
		messages   = flag.String("messages", "", "Comma separated message names to decode")
		withLabels = flag.Bool("labels", false, "Attach value description labels")
		logLevel   = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		send       = flag.String("send", "", "Encode and transmit one message, then exit")
		set        = flag.String("set", "", "Signal values for -send: name=value,name=value")
	)
	flag.Parse()

	cfg := defaultConfig()
	if *cfgPath != "" {
		loaded, err := LoadMonitorConfig(*cfgPath)
		if err != nil {
			_, _ = os.Stderr.WriteString("ERROR: config " + *cfgPath + ": " + err.Error() + "\n")
			os.Exit(1)
		}
		cfg = loaded
	}
	// explicitly set flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "iface":
			cfg.Interface = *iface
		case "dbc":
			cfg.DatabasePath = *dbPath
		case "replay":
			cfg.ReplayPath = *replay
		case "format":
			cfg.Format = *format
		case "out":
			cfg.OutputPath = *outPath
		case "messages":
			cfg.Messages = splitList(*messages)
		case "labels":
			cfg.Labels = *withLabels
		case "log":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		_, _ = os.Stderr.WriteString("ERROR: " + err.Error() + "\n")
		flag.Usage()
		os.Exit(2)
	}

	log, err := utils.NewFileLogger(cfg.LogPath, utils.ParseLevel(cfg.LogLevel), *send == "")
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + cfg.LogPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *send != "" {
		if err := runSend(ctx, cfg, *send, *set, log); err != nil {
			log.Critical("Send failed: %v", err)
			os.Exit(1)
		}
		return
	}

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}

func runSend(ctx context.Context, cfg MonitorConfig, name, assignments string, log *utils.Logger) error {
	values, err := parseAssignments(assignments)
	if err != nil {
		return err
	}
	network, err := dbc.LoadNetwork(cfg.DatabasePath, log)
	if err != nil {
		return errors.Wrap(err, "load database")
	}
	w, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return err
	}
	defer w.Close()
	return sendFrame(ctx, network, w, name, values, log)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
