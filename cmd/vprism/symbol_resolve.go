package main

import (
	"github.com/spf13/cobra"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
	"github.com/wxxb789/vprism-core/internal/symbol"
)

func newSymbolCmd(flags *globalFlags) *cobra.Command {
	symbolCmd := &cobra.Command{
		Use:   "symbol",
		Short: "Symbol normalization utilities",
	}

	var market, asset string

	resolveCmd := &cobra.Command{
		Use:   "resolve [symbol]",
		Short: "Resolve a raw symbol to its canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var opts []symbol.Option

			conn, err := openStorage(ctx, flags)
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
				hook, err := newSymbolMapHook(ctx, conn)
				if err != nil {
					return err
				}
				opts = append(opts, symbol.WithPersistenceHook(hook))
			}

			engine, err := symbol.NewEngine(symbol.DefaultRules(), opts...)
			if err != nil {
				return vperrors.New(vperrors.CodeValidation, "cli", err.Error(), false, nil)
			}

			resolved, err := engine.Normalize(ctx, args[0], model.Market(market), model.AssetKind(asset))
			if err != nil {
				return err
			}

			r := newRow().
				set("raw_symbol", resolved.RawSymbol).
				set("canonical", resolved.Canonical).
				set("market", string(resolved.Market)).
				set("asset_type", string(resolved.AssetType)).
				set("rule_id", resolved.RuleID)
			return renderRows(flags, []*row{r})
		},
	}
	resolveCmd.Flags().StringVar(&market, "market", "cn", "market tag")
	resolveCmd.Flags().StringVar(&asset, "asset", "stock", "asset kind")

	symbolCmd.AddCommand(resolveCmd)
	return symbolCmd
}
