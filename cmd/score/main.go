package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dushixiang/tfc/pkg/pnl"
	"github.com/spf13/cobra"
)

var (
	inputFile string
)

// 离线复算：读取 JSON 成交数组，输出已实现盈亏与收益率，用于核对对战结果
var rootCmd = &cobra.Command{
	Use:   "score",
	Short: "按对战规则复算一组成交的已实现盈亏",
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if inputFile != "" && inputFile != "-" {
			f, err := os.Open(inputFile)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		var trades []pnl.Trade
		if err := json.NewDecoder(r).Decode(&trades); err != nil {
			return fmt.Errorf("failed to decode trades: %w", err)
		}
		pnl.SortTrades(trades)

		result := pnl.Calculate(trades)
		out := map[string]interface{}{
			"realized_pnl": result.RealizedPnl,
			"total_fees":   result.TotalFees,
			"trades_count": result.TradesCount,
			"open_margin":  result.OpenMargin,
			"max_margin":   result.MaxMargin,
			"pnl_percent":  result.PnlPercent(),
			"positions":    result.Positions,
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "-", "成交 JSON 文件，默认读取标准输入")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
