package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wxxb789/vprism-core/internal/dataservice"
	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/registry"
	"github.com/wxxb789/vprism-core/internal/router"
)

func newDataCmd(flags *globalFlags) *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Read OHLCV market data through the router and cache",
	}

	var symbols, symbolsFrom, asset, market, start, end, timeframe string

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch OHLCV data for one or more symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := resolveFetchSymbols(symbols, symbolsFrom)
			if err != nil {
				return vperrors.New(vperrors.CodeValidation, "cli", err.Error(), false, nil)
			}

			q := model.Query{
				Asset:      model.AssetKind(asset),
				RawSymbols: raw,
				Timeframe:  model.Timeframe(timeframe),
			}
			if market != "" {
				m := model.Market(market)
				q.Market = &m
			}
			if start != "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return vperrors.New(vperrors.CodeValidation, "cli", "invalid --start: "+err.Error(), false, nil)
				}
				q.Start = &t
			}
			if end != "" {
				t, err := time.Parse("2006-01-02", end)
				if err != nil {
					return vperrors.New(vperrors.CodeValidation, "cli", "invalid --end: "+err.Error(), false, nil)
				}
				q.End = &t
			}

			reg := registry.New()
			rt := router.New(reg, router.NewBreakerManager())
			svc := dataservice.New(rt, newCache(flags), nil)

			resp, err := svc.Fetch(cmd.Context(), q)
			if err != nil {
				return err
			}

			rows := make([]*row, 0, len(resp.Points))
			for _, p := range resp.Points {
				r := newRow().
					set("symbol", p.Symbol).
					set("timestamp", p.Timestamp.UTC().Format(time.RFC3339)).
					set("source", resp.DataSource)
				if p.Close != nil {
					r.set("close", p.Close.String())
				}
				if p.Volume != nil {
					r.set("volume", p.Volume.String())
				}
				rows = append(rows, r)
			}
			return renderRows(flags, rows)
		},
	}
	fetchCmd.Flags().StringVar(&symbols, "symbols", "", "comma-separated symbols")
	fetchCmd.Flags().StringVar(&symbolsFrom, "symbols-from", "", "path to a symbol file (spec §6 symbol file format)")
	fetchCmd.Flags().StringVar(&asset, "asset", "stock", "asset kind")
	fetchCmd.Flags().StringVar(&market, "market", "", "market tag")
	fetchCmd.Flags().StringVar(&start, "start", "", "window start (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&end, "end", "", "window end (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&timeframe, "timeframe", string(model.Timeframe1d), "bar timeframe")

	dataCmd.AddCommand(fetchCmd)
	return dataCmd
}

func resolveFetchSymbols(symbols, symbolsFrom string) ([]string, error) {
	var raw []string
	if symbols != "" {
		for _, s := range strings.Split(symbols, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				raw = append(raw, trimmed)
			}
		}
	}
	if symbolsFrom != "" {
		fromFile, err := loadSymbolFile(symbolsFrom)
		if err != nil {
			return nil, err
		}
		raw = append(raw, fromFile...)
	}
	raw = dedupePreservingOrder(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one symbol required via --symbols or --symbols-from")
	}
	return raw, nil
}
