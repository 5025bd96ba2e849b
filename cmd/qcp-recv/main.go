// Command qcp-recv requests and reassembles a file from a qcp-send peer
// over UDP (spec §6 CLI contract): `qcp-recv <server_ip> <server_port> [output_prefix]`.
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

// fileSink writes payload chunks append-only to an *os.File in the order
// the session controller delivers them, per spec §5's "sink file is
// owned exclusively by the receiver; writes are append-only ... no seeks".
type fileSink struct {
	f *os.File
}

func (s *fileSink) Write(seq uint32, payload []byte) error {
	_, err := s.f.Write(payload)
	return err
}

func main() {
	profile := flag.String("profile", "prod", "logging profile: dev or prod")
	outputPrefix := flag.String("output-prefix", "", "prefix prepended to the default sink filename")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, empty disables it")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: qcp-recv [flags] <server_ip> <server_port> [output_prefix]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	prefix := *outputPrefix
	if len(args) == 3 {
		prefix = args[2]
	}

	logger, err := logutil.New(*profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qcp-recv: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sinkPath := prefix + "received_data.txt"
	f, err := os.Create(sinkPath)
	if err != nil {
		logger.Fatal("failed to create sink file", zap.String("path", sinkPath), zap.Error(err))
	}
	defer f.Close()

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.New("qcp")
		go func() {
			if err := metrics.ListenAndServe(*metricsAddr); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	serverAddr := fmt.Sprintf("%s:%s", args[0], args[1])
	err = session.RunReceiver(session.ReceiverConfig{
		ServerAddr: serverAddr,
		Sink:       &fileSink{f: f},
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		logger.Error("session failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("transfer complete", zap.String("output", sinkPath))
}
