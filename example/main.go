package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/J1407B-K/halt/server"
)

var (
	addr           string
	maxHeaderBytes int
	maxBodyBytes   int
	logFile        string
	debug          bool
)

var rootCmd = &cobra.Command{
	Use:   "halt-example",
	Short: "Serve a demo handler behind the halt HTTP/1.1 front end",
	Long: `halt-example serves /ping and /stats over gnet. Requests the parser
rejects get a fixed 400, 431 or 505 response and the connection is closed.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	rootCmd.Flags().IntVar(&maxHeaderBytes, "max-header-bytes", 8<<10, "largest accepted header section")
	rootCmd.Flags().IntVar(&maxBodyBytes, "max-body-bytes", 4<<20, "largest accepted request body")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log every rejected request")
}

func newLogger() *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	sink := zapcore.Lock(os.Stderr)
	if logFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		})
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, sink, level))
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	srv := newServer(logger,
		server.WithMaxHeaderBytes(maxHeaderBytes),
		server.WithMaxBodyBytes(maxBodyBytes),
		server.WithLogger(logger),
	)
	return srv.Run(addr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
