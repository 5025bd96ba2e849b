// Command qcp-send streams a file to a qcp-recv peer over UDP (spec §6
// CLI contract). Usage mirrors the teacher's flat flag.Parse()+positional
// arguments convention (cmd/gateway/main.go): `qcp-send <bind_ip> <bind_port> [window_bytes]`.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/aetherflow/quantumcp/internal/logutil"
	"github.com/aetherflow/quantumcp/internal/metrics"
	"github.com/aetherflow/quantumcp/internal/session"
)

func main() {
	profile := flag.String("profile", "prod", "logging profile: dev or prod")
	variant := flag.String("cc", "cubic", "congestion control variant: cubic or bbr")
	source := flag.String("source", "data.txt", "path to the file to send")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, empty disables it")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: qcp-send [flags] <bind_ip> <bind_port> [window_bytes]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger, err := logutil.New(*profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qcp-send: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	bindAddr := fmt.Sprintf("%s:%s", args[0], args[1])
	windowBytes := uint32(0)
	if len(args) == 3 {
		var n int
		if _, scanErr := fmt.Sscanf(args[2], "%d", &n); scanErr != nil || n <= 0 {
			logger.Fatal("invalid window_bytes", zap.String("value", args[2]))
		}
		windowBytes = uint32(n)
	}

	data, err := os.ReadFile(*source)
	if err != nil {
		logger.Fatal("failed to read source file", zap.String("path", *source), zap.Error(err))
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.New("qcp")
		go func() {
			if err := metrics.ListenAndServe(*metricsAddr); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	err = session.RunSender(session.SenderConfig{
		BindAddr:    bindAddr,
		WindowBytes: windowBytes,
		Variant:     *variant,
		Source:      session.NewSliceSource(data),
		Logger:      logger,
		Metrics:     m,
	})
	if err != nil {
		logger.Error("session failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("transfer complete")
}
