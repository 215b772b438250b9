package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethspider/eth-spider/internal/config"
	"github.com/ethspider/eth-spider/internal/storage"
)

var (
	exportFormat string
	exportLimit  int
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json or csv")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum delivery rows to export")
}

var exportCmd = &cobra.Command{
	Use:       "export {deliveries|cursors|pools}",
	Short:     "Export stored rows as JSON or CSV",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"deliveries", "cursors", "pools"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		switch args[0] {
		case "deliveries":
			rows, err := store.ListDeliveries(ctx, exportLimit)
			if err != nil {
				return err
			}
			return writeExport(out, exportFormat, deliveryTable(rows))
		case "cursors":
			rows, err := store.ListCursors(ctx)
			if err != nil {
				return err
			}
			return writeExport(out, exportFormat, cursorTable(rows))
		default:
			rows, err := store.ListPools(ctx)
			if err != nil {
				return err
			}
			return writeExport(out, exportFormat, poolTable(rows))
		}
	},
}

// exportTable carries both renderings of one result set: data marshals to
// JSON, header+rows print as CSV.
type exportTable struct {
	data   any
	header []string
	rows   [][]string
}

func writeExport(out io.Writer, format string, t exportTable) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(t.data)
	case "csv":
		w := csv.NewWriter(out)
		if err := w.Write(t.header); err != nil {
			return err
		}
		for _, row := range t.rows {
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func deliveryTable(rows []storage.Delivery) exportTable {
	type rec struct {
		ID        string    `json:"id"`
		EventKey  string    `json:"event_key"`
		Kind      string    `json:"kind"`
		SinkID    string    `json:"sink_id"`
		Status    string    `json:"status"`
		Detail    string    `json:"detail,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	recs := make([]rec, 0, len(rows))
	csvRows := make([][]string, 0, len(rows))
	for _, d := range rows {
		recs = append(recs, rec{d.ID, d.EventKey, d.Kind, d.SinkID, d.Status, d.Detail, d.CreatedAt})
		csvRows = append(csvRows, []string{
			d.ID, d.EventKey, d.Kind, d.SinkID, d.Status, d.Detail,
			d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return exportTable{
		data:   recs,
		header: []string{"id", "event_key", "kind", "sink_id", "status", "detail", "created_at"},
		rows:   csvRows,
	}
}

func cursorTable(rows []storage.Cursor) exportTable {
	type rec struct {
		SourceID  string    `json:"source_id"`
		Height    uint64    `json:"height"`
		Hash      string    `json:"hash"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	recs := make([]rec, 0, len(rows))
	csvRows := make([][]string, 0, len(rows))
	for _, c := range rows {
		recs = append(recs, rec{c.SourceID, c.Height, c.Hash, c.UpdatedAt})
		csvRows = append(csvRows, []string{
			c.SourceID,
			strconv.FormatUint(c.Height, 10),
			c.Hash,
			c.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return exportTable{
		data:   recs,
		header: []string{"source_id", "height", "hash", "updated_at"},
		rows:   csvRows,
	}
}

func poolTable(rows []storage.Pool) exportTable {
	type rec struct {
		Address      string    `json:"address"`
		Token0       string    `json:"token0"`
		Token1       string    `json:"token1"`
		Version      string    `json:"version"`
		Fee          uint32    `json:"fee,omitempty"`
		HasLiquidity bool      `json:"has_liquidity"`
		HasTraded    bool      `json:"has_traded"`
		FirstBlock   uint64    `json:"first_block"`
		CreatedAt    time.Time `json:"created_at"`
	}

	recs := make([]rec, 0, len(rows))
	csvRows := make([][]string, 0, len(rows))
	for _, p := range rows {
		recs = append(recs, rec{p.Address, p.Token0, p.Token1, p.Version, p.Fee, p.HasLiquidity, p.HasTraded, p.FirstBlock, p.CreatedAt})
		csvRows = append(csvRows, []string{
			p.Address, p.Token0, p.Token1, p.Version,
			strconv.FormatUint(uint64(p.Fee), 10),
			strconv.FormatBool(p.HasLiquidity),
			strconv.FormatBool(p.HasTraded),
			strconv.FormatUint(p.FirstBlock, 10),
			p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return exportTable{
		data:   recs,
		header: []string{"address", "token0", "token1", "version", "fee", "has_liquidity", "has_traded", "first_block", "created_at"},
		rows:   csvRows,
	}
}
