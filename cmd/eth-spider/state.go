package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethspider/eth-spider/internal/chain"
	"github.com/ethspider/eth-spider/internal/config"
	"github.com/ethspider/eth-spider/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show cursor height, chain head, and lag",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cursors, err := store.ListCursors(cmd.Context())
		if err != nil {
			return err
		}
		if len(cursors) == 0 {
			fmt.Fprintln(out, "no cursor yet; run has not scanned anything")
			return nil
		}

		var head uint64
		if client, err := chain.NewRPCClient(cfg.Node.RPCURL); err != nil {
			fmt.Fprintf(out, "chain head unavailable: %v\n", err)
		} else {
			defer client.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRPCTimeout)
			defer cancel()
			if header, err := client.HeaderByNumber(ctx, nil); err != nil {
				fmt.Fprintf(out, "chain head unavailable: %v\n", err)
			} else {
				head = header.Number.Uint64()
				fmt.Fprintf(out, "chain head: %d\n", head)
			}
		}

		for _, c := range cursors {
			fmt.Fprintf(out, "- %s: height %d hash %s updated %s",
				c.SourceID, c.Height, c.Hash, c.UpdatedAt.UTC().Format(time.RFC3339))
			if head > c.Height {
				fmt.Fprintf(out, " (lag %d)", head-c.Height)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}
