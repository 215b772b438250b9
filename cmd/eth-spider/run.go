package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ethspider/eth-spider/internal/chain"
	"github.com/ethspider/eth-spider/internal/classify"
	"github.com/ethspider/eth-spider/internal/config"
	"github.com/ethspider/eth-spider/internal/erc20"
	"github.com/ethspider/eth-spider/internal/events"
	"github.com/ethspider/eth-spider/internal/health"
	"github.com/ethspider/eth-spider/internal/logging"
	"github.com/ethspider/eth-spider/internal/metrics"
	"github.com/ethspider/eth-spider/internal/notify"
	"github.com/ethspider/eth-spider/internal/pools"
	"github.com/ethspider/eth-spider/internal/spider"
	"github.com/ethspider/eth-spider/internal/storage"
)

var (
	flagOnce    bool
	flagDryRun  bool
	flagFrom    uint64
	flagTo      uint64
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one tick and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Do not send to sinks")
	runCmd.Flags().Uint64Var(&flagFrom, "from", 0, "Rewind the cursor and scan from this block")
	runCmd.Flags().Uint64Var(&flagTo, "to", 0, "Stop once the cursor reaches this block (inclusive)")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watch loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = cfg.LogLevel
		}
		log := logging.NewWithLevel(logLevel)

		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		retention := config.Duration(cfg.Storage.Retention, 168*time.Hour)
		if pruned, err := store.PruneDeliveries(ctx, time.Now().Add(-retention)); err != nil {
			log.Warn("prune deliveries", "error", err)
		} else if pruned > 0 {
			log.Info("pruned delivery history", "rows", pruned)
		}

		client, err := chain.NewRPCClient(cfg.Node.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()

		tokenAddr := cfg.Token.Addr()
		meta, err := erc20.FetchMetadata(ctx, client, tokenAddr)
		if err != nil {
			log.Warn("token metadata incomplete", "error", err)
		}
		if cfg.Token.Name != "" {
			meta.Name = cfg.Token.Name
		}
		if cfg.Token.Symbol != "" {
			meta.Symbol = cfg.Token.Symbol
		}
		if cfg.Token.Decimals != nil {
			meta.Decimals = uint8(*cfg.Token.Decimals)
		}
		log.Info("watching token",
			"address", tokenAddr.Hex(),
			"name", meta.Name,
			"symbol", meta.Symbol,
			"decimals", meta.Decimals)

		tracker := pools.NewTracker(store, log,
			tokenAddr,
			common.HexToAddress(cfg.Pools.V2Factory),
			common.HexToAddress(cfg.Pools.V3Factory))
		if cfg.Pools.Track {
			if err := tracker.Load(ctx); err != nil {
				return fmt.Errorf("load pools: %w", err)
			}
			log.Info("pool tracking enabled", "pools", tracker.Count())
		}

		classifier := classify.New(tracker.PoolState,
			toAddresses(cfg.Pools.Routers),
			toAddresses(cfg.Pools.Exchanges))

		watched := func() []common.Address {
			addrs := []common.Address{tokenAddr}
			if cfg.Pools.Track {
				addrs = append(addrs, tracker.V2Factory(), tracker.V3Factory())
				addrs = append(addrs, tracker.Addresses()...)
			}
			return addrs
		}

		srcID := strings.ToLower(tokenAddr.Hex())
		if flagFrom > 0 {
			if err := seedCursor(ctx, client, store, srcID, flagFrom); err != nil {
				return err
			}
			log.Info("cursor rewound", "from", flagFrom)
		}

		scanner := chain.NewScanner(client, store, chain.ScannerConfig{
			SourceID:      srcID,
			StartBlock:    cfg.Watch.StartBlock,
			BatchSize:     cfg.Watch.BatchSize,
			Confirmations: cfg.Watch.Confirmations,
			StopBlock:     flagTo,
			Addresses:     watched,
			Topics:        events.WatchedTopics(),
		})

		routes, err := notify.FromConfig(cfg.Sinks, cfg.Node.ExplorerURL)
		if err != nil {
			return err
		}

		var minRaw *big.Int
		if cfg.Report.MinAmount != "" {
			minRaw, err = erc20.ParseUnits(cfg.Report.MinAmount, meta.Decimals)
			if err != nil {
				return fmt.Errorf("min_amount: %w", err)
			}
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		var streamer *chain.Streamer
		var notifyStreamDrop func(error) // bound once the spider exists, before the streamer starts
		if cfg.Watch.Subscribe {
			wsClient, err := chain.NewRPCClient(cfg.Node.WSURL)
			if err != nil {
				return fmt.Errorf("dial websocket: %w", err)
			}
			defer wsClient.Close()
			delay := config.Duration(cfg.Watch.ResubscribeDelay, 5*time.Second)
			streamer = chain.NewStreamer(wsClient, log, watched, events.WatchedTopics(), delay, func(err error) {
				mtr.StreamDropped()
				if notifyStreamDrop != nil {
					notifyStreamDrop(err)
				}
			})
		}

		var details spider.DetailClient
		if cfg.Watch.TxDetails {
			details = client
		}

		var onNewPool func()
		if streamer != nil {
			onNewPool = streamer.Refresh
		}

		sp := spider.New(spider.Params{
			Store:   store,
			Scanner: scanner,
			Details: details,
			Token: notify.Token{
				Address:  tokenAddr.Hex(),
				Name:     meta.Name,
				Symbol:   meta.Symbol,
				Decimals: int(meta.Decimals),
			},
			MinRaw:     minRaw,
			Pools:      tracker,
			Classifier: classifier,
			Routes:     routes,
			Metrics:    mtr,
			Log:        log,
			DryRun:     flagDryRun,
			DedupeTTL:  config.Duration(cfg.Report.DedupeTTL, 24*time.Hour),
			OnNewPool:  onNewPool,
		})

		if flagHealth != "" {
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: health.NewRPCChecker(client).Ping,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsSrv := &http.Server{Addr: flagMetrics, Handler: mux}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}()
		}

		var wake <-chan struct{}
		if streamer != nil {
			notifyStreamDrop = func(err error) {
				sp.Notify(ctx, "stream interrupted, resubscribing", err.Error())
			}
			wake = streamer.Wake()
			go func() {
				if err := streamer.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("stream error", "error", err)
				}
			}()
		}

		if cfg.Report.StartupNotice {
			sp.Notify(ctx, "watcher started",
				fmt.Sprintf("%s (%s), %d pools tracked", meta.Name, meta.Symbol, tracker.Count()))
		}

		interval := config.Duration(cfg.Watch.Interval, 12*time.Second)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := sp.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					log.Info("shutting down")
					return nil
				}
				log.Error("watch pass failed", "error", err)
				if flagOnce {
					return err
				}
			} else {
				log.Info("tick complete", "dry_run", flagDryRun)
			}

			if flagOnce {
				break
			}
			if flagTo > 0 {
				height, _, ok, err := store.GetCursor(ctx, srcID)
				if err != nil {
					return err
				}
				if ok && height >= flagTo {
					log.Info("target height reached", "height", height)
					break
				}
			}

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case <-ticker.C:
			case <-wake:
			}
		}
		return nil
	},
}

// seedCursor points the scanner at an explicit height, replacing whatever
// cursor a previous run left behind. Storing the parent hash of the target
// block keeps the reorg check happy on the next pass.
func seedCursor(ctx context.Context, client *chain.RPCClient, store *storage.Store, srcID string, from uint64) error {
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(from))
	if err != nil {
		return fmt.Errorf("header %d: %w", from, err)
	}
	if err := store.UpsertCursor(ctx, srcID, from-1, header.ParentHash.Hex()); err != nil {
		return fmt.Errorf("seed cursor: %w", err)
	}
	return nil
}

func toAddresses(hexes []string) []common.Address {
	out := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		out = append(out, common.HexToAddress(h))
	}
	return out
}
