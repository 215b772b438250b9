package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold config.yaml and .env.example",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		files := []struct {
			name    string
			content string
		}{
			{"config.yaml", sampleConfig},
			{".env.example", sampleEnv},
		}

		for _, f := range files {
			if _, err := os.Stat(f.name); err == nil && !initForce {
				fmt.Fprintf(out, "skip %s (exists; use --force to overwrite)\n", f.name)
				continue
			}
			if err := os.WriteFile(f.name, []byte(f.content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", f.name, err)
			}
			fmt.Fprintf(out, "wrote %s\n", f.name)
		}

		fmt.Fprintln(out, "next: copy .env.example to .env, fill it in, then run `eth-spider validate`")
		return nil
	},
}

const sampleConfig = `version: 1
log_level: info

node:
  rpc_url: ${ETH_RPC_URL}
  # ws_url: ${ETH_WS_URL}
  explorer_url: https://etherscan.io

token:
  address: ${TOKEN_ADDRESS}
  # Override on-chain metadata if the contract misreports it:
  # name: My Token
  # symbol: TKN
  # decimals: 18

watch:
  interval: 12s
  batch_size: 200
  confirmations: 3
  start_block: latest
  # Set subscribe: true (and node.ws_url) to react to logs as they land.
  subscribe: false
  # Fetch per-transaction gas and timestamps for reports.
  tx_details: true

pools:
  track: true
  # Extra DEX routers or exchange deposit addresses to classify against:
  # routers:
  #   - "0x..."
  # exchanges:
  #   - "0x..."

report:
  # Transfers below this many tokens are ignored.
  min_amount: "100000"
  dedupe_ttl: 24h
  startup_notice: true

sinks:
  - id: console
    type: console
  # - id: telegram
  #   type: telegram
  #   bot_token: ${TELEGRAM_BOT_TOKEN}
  #   chat_id: ${TELEGRAM_CHAT_ID}
  #   max_per_minute: 20
  # - id: slack
  #   type: webhook
  #   url: ${SLACK_WEBHOOK_URL}

storage:
  path: spider.db
  retention: 168h
`

const sampleEnv = `# Copy to .env and fill in. Values are interpolated into config.yaml.
ETH_RPC_URL=https://mainnet.infura.io/v3/your-key
# ETH_WS_URL=wss://mainnet.infura.io/ws/v3/your-key
TOKEN_ADDRESS=0x0000000000000000000000000000000000000000
# TELEGRAM_BOT_TOKEN=123456:replace-me
# TELEGRAM_CHAT_ID=-1001234567890
# SLACK_WEBHOOK_URL=https://hooks.slack.com/services/...
`
