package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethspider/eth-spider/internal/chain"
	"github.com/ethspider/eth-spider/internal/config"
	"github.com/ethspider/eth-spider/internal/erc20"
)

const defaultRPCTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, ping the node, and check the token contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultRPCTimeout)
		defer cancel()

		failures := 0

		client, err := chain.NewRPCClient(cfg.Node.RPCURL)
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		defer client.Close()

		chainID, err := client.ChainID(ctx)
		if err != nil {
			failures++
			fmt.Fprintf(out, "- rpc: ERROR %v\n", err)
		} else {
			fmt.Fprintf(out, "- rpc: chain id %s OK\n", chainID)
		}

		tokenAddr := cfg.Token.Addr()
		code, err := client.CodeAt(ctx, tokenAddr, nil)
		switch {
		case err != nil:
			failures++
			fmt.Fprintf(out, "- token %s: ERROR %v\n", tokenAddr.Hex(), err)
		case len(code) == 0:
			failures++
			fmt.Fprintf(out, "- token %s: no contract code at address\n", tokenAddr.Hex())
		default:
			meta, err := erc20.FetchMetadata(ctx, client, tokenAddr)
			if err != nil {
				fmt.Fprintf(out, "- token %s: metadata incomplete: %v\n", tokenAddr.Hex(), err)
			}
			fmt.Fprintf(out, "- token %s: %s (%s), %d decimals\n", tokenAddr.Hex(), meta.Name, meta.Symbol, meta.Decimals)
			if supply, err := erc20.TotalSupply(ctx, client, tokenAddr); err == nil {
				fmt.Fprintf(out, "- total supply: %s %s\n", erc20.Format(erc20.Scale(supply, meta.Decimals)), meta.Symbol)
			}
		}

		if cfg.Watch.Subscribe {
			ws, err := chain.NewRPCClient(cfg.Node.WSURL)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- ws: ERROR %v\n", err)
			} else {
				ws.Close()
				fmt.Fprintln(out, "- ws: endpoint OK")
			}
		}

		fmt.Fprintf(out, "- %d sink(s) configured\n", len(cfg.Sinks))

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}
		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
