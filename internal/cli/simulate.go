package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateToken  string
	simulatePoints int
	simulateValue  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条领取提醒并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateToken == "" {
			return errors.New("--token 必须指定")
		}

		value := decimal.NewFromFloat(simulateValue)
		return getApp().SimulateAlert(cmd.Context(), simulateToken, simulatePoints, value)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "代币符号")
	simulateCmd.Flags().IntVar(&simulatePoints, "points", 0, "领取所需积分")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "预估价值 (USD)")
}
