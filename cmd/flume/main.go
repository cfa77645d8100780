package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/flume/adapter/eventlog"
	cfgpkg "github.com/rzbill/flume/internal/config"
	pebblestore "github.com/rzbill/flume/internal/storage/pebble"
	"github.com/rzbill/flume/pkg/id"
	logpkg "github.com/rzbill/flume/pkg/log"
	"github.com/rzbill/flume/receiver"
)

func main() {
	cfg, err := cfgpkg.Load(os.Getenv("FLUME_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "flume: load config:", err)
		os.Exit(1)
	}
	cfgpkg.FromEnv(&cfg)

	logger := newLogger(cfg)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "flume",
		Short: "Flume CLI",
		Long:  "Flume bridges an ordered log and demand-driven consumers. This CLI publishes to and tails the local event log.",
	}
	rootCmd.PersistentFlags().String("data-dir", cfg.DataDir, "Data directory for the local event log")

	rootCmd.AddCommand(newPublishCommand(logger))
	rootCmd.AddCommand(newTailCommand(cfg, logger))

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", logpkg.Err(err))
		os.Exit(1)
	}
}

func newLogger(cfg cfgpkg.Config) logpkg.Logger {
	level, err := logpkg.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logpkg.InfoLevel
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.LogFormat == "json" {
		formatter = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
}

func openLog(cmd *cobra.Command, logger logpkg.Logger) (*eventlog.Log, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return eventlog.Open(eventlog.Options{
		DataDir: dataDir,
		Fsync:   pebblestore.FsyncModeInterval,
		Logger:  logger,
	})
}

func newPublishCommand(logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [payload]",
		Short: "Append a record to a stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			count, _ := cmd.Flags().GetInt("count")
			headerKVs, _ := cmd.Flags().GetStringArray("header")
			if stream == "" {
				return fmt.Errorf("--stream is required")
			}
			payload := ""
			if len(args) == 1 {
				payload = args[0]
			}
			headers, err := parseHeaders(headerKVs)
			if err != nil {
				return err
			}

			l, err := openLog(cmd, logger)
			if err != nil {
				return err
			}
			defer l.Close()

			for i := 0; i < count; i++ {
				recID, err := l.Append(cmd.Context(), stream, []byte(payload), headers)
				if err != nil {
					return err
				}
				fmt.Println(recID)
			}
			return nil
		},
	}
	cmd.Flags().String("stream", "", "Stream name")
	cmd.Flags().IntP("count", "n", 1, "Number of copies to append")
	cmd.Flags().StringArray("header", nil, "Header as key=value (repeatable)")
	return cmd
}

func newTailCommand(cfg cfgpkg.Config, logger logpkg.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail a stream through the receiver, printing JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			from, _ := cmd.Flags().GetString("from")
			group, _ := cmd.Flags().GetString("group")
			consumer, _ := cmd.Flags().GetString("consumer")
			manualAck, _ := cmd.Flags().GetBool("manual-ack")
			batch, _ := cmd.Flags().GetInt("batch")
			blockMs, _ := cmd.Flags().GetInt("block-ms")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt64("limit")
			if stream == "" {
				return fmt.Errorf("--stream is required")
			}
			if consumer == "" {
				consumer = "cli-" + id.NewGenerator().Next().String()
			}

			l, err := openLog(cmd, logger)
			if err != nil {
				return err
			}
			defer l.Close()

			r, err := receiver.New(l, receiver.Options{
				BatchSize:   batch,
				PollTimeout: time.Duration(blockMs) * time.Millisecond,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			off, err := resolveOffset(stream, from, group)
			if err != nil {
				return err
			}

			c := receiver.Consumer{Group: group, Name: consumer}
			p := &printer{
				done:      make(chan error, 1),
				limit:     limit,
				cancel:    cancel,
				acker:     l,
				consumer:  c,
				manualAck: manualAck && group != "",
			}
			var opts []receiver.SubscribeOption
			if filter != "" {
				opts = append(opts, receiver.WithFilter(filter))
			}

			var sub *receiver.Subscription
			switch {
			case group == "":
				sub, err = r.Receive(ctx, off, p, opts...)
			case manualAck:
				sub, err = r.ReceiveManualAck(ctx, c, off, p, opts...)
			default:
				sub, err = r.ReceiveAutoAck(ctx, c, off, p, opts...)
			}
			if err != nil {
				return err
			}
			defer sub.Cancel()

			if limit > 0 {
				sub.Request(limit)
			} else {
				sub.Request(receiver.Unbounded)
			}

			select {
			case err := <-p.done:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}
	cmd.Flags().String("stream", "", "Stream name")
	cmd.Flags().String("from", "last-consumed", "Start position: latest|earliest|last-consumed|ID")
	cmd.Flags().String("group", "", "Consumer group (optional)")
	cmd.Flags().String("consumer", "", "Consumer name within the group (default: generated)")
	cmd.Flags().Bool("manual-ack", false, "Acknowledge records explicitly after printing")
	cmd.Flags().Int("batch", cfg.BatchSize, "Fetch batch size")
	cmd.Flags().Int("block-ms", cfg.BlockMs, "How long a fetch waits for new records, in ms")
	cmd.Flags().String("filter", "", "CEL filter expression")
	cmd.Flags().Int64("limit", 0, "Stop after N records (0 = run until interrupted)")
	return cmd
}

func resolveOffset(stream, from, group string) (receiver.StreamOffset, error) {
	switch from {
	case "latest":
		return receiver.FromLatest(stream), nil
	case "earliest":
		return receiver.FromStart(stream), nil
	case "last-consumed", "":
		if group == "" {
			return receiver.FromStart(stream), nil
		}
		return receiver.FromLastConsumed(stream), nil
	default:
		return receiver.StreamOffset{Stream: stream, Offset: receiver.Cursor(from)}, nil
	}
}

// printer writes each record as a JSON line and acknowledges when asked to.
type printer struct {
	acker     receiver.Acker
	consumer  receiver.Consumer
	manualAck bool
	limit     int64
	seen      int64
	cancel    context.CancelFunc
	done      chan error
}

type tailLine struct {
	ID      string            `json:"id"`
	Stream  string            `json:"stream"`
	Payload string            `json:"payload"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (p *printer) OnMessage(m receiver.Message) {
	b, _ := json.Marshal(tailLine{ID: m.ID, Stream: m.Stream, Payload: string(m.Payload), Headers: m.Headers})
	fmt.Println(string(b))
	if p.manualAck {
		_ = p.acker.Ack(context.Background(), p.consumer, m.Stream, m.ID)
	}
	p.seen++
	if p.limit > 0 && p.seen >= p.limit {
		p.done <- nil
		p.cancel()
	}
}

func (p *printer) OnError(err error) {
	p.done <- err
	p.cancel()
}

func parseHeaders(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --header %q; expected key=value", kv)
		}
		headers[k] = v
	}
	return headers, nil
}
