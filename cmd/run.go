package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/runelight-network/runelight/client/bitcoind"
	"github.com/runelight-network/runelight/indexer"
	"github.com/runelight-network/runelight/internal/config"
	"github.com/runelight-network/runelight/pkg/logger"
	"github.com/runelight-network/runelight/pkg/logger/slogx"
	"github.com/runelight-network/runelight/storage/memory"
	pebblestore "github.com/runelight-network/runelight/storage/pebble"
)

type runCmdOptions struct {
	Database string // ledger database backend, `pebble` | `memory`
}

func NewRunCommand() *cobra.Command {
	opts := &runCmdOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the runes indexer",
		Run: func(cmd *cobra.Command, args []string) {
			runHandler(opts, cmd)
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.Database, "database", "pebble", `Database to store the rune ledger. current supported databases: "pebble" | "memory"`)

	return runCmd
}

func runHandler(opts *runCmdOptions, cmd *cobra.Command) {
	conf := config.Load()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx, slogx.Stringer("network", conf.Network))

	if !conf.Network.IsValid() {
		logger.PanicContext(ctx, "Unsupported network", slogx.String("network", conf.Network.String()))
	}

	client, err := bitcoind.New(conf.BitcoinNode)
	if err != nil {
		logger.PanicContext(ctx, "Failed to create Bitcoin Core RPC client", slogx.Error(err))
	}
	defer client.Close()

	var store indexer.Storage
	switch opts.Database {
	case "pebble":
		pebbleStore, err := pebblestore.New(conf.Indexer.DataDir)
		if err != nil {
			logger.PanicContext(ctx, "Failed to open ledger database", slogx.Error(err))
		}
		defer func() {
			if err := pebbleStore.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close ledger database", err)
			}
		}()
		store = pebbleStore
	case "memory":
		store = memory.New()
	default:
		logger.PanicContext(ctx, "Unsupported database", slogx.String("database", opts.Database))
	}

	idx := indexer.New(store, client, indexer.WithNetwork(conf.Network))

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.InfoContext(ectx, "Starting runes indexer")
		for {
			err := retry.Do(
				func() error { return idx.Update(ectx) },
				retry.Attempts(3),
				retry.Delay(time.Second),
				retry.LastErrorOnly(true),
			)
			if err != nil {
				if errors.Is(err, indexer.ErrReorgDetected) {
					return errors.Wrap(err, "ledger must be rebuilt from before the fork point")
				}
				if ectx.Err() != nil {
					return nil
				}
				logger.ErrorContext(ectx, "Sync round failed", err)
			}

			select {
			case <-ectx.Done():
				return nil
			case <-time.After(conf.Indexer.PollInterval):
			}
		}
	})

	if err := eg.Wait(); err != nil {
		logger.ErrorContext(ctx, "Indexer stopped with error", err)
		return
	}
	logger.InfoContext(ctx, "Shutting down")
}
