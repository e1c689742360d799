package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a run report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Wallet Feature Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Wallets | %d |\n", r.Summary.TotalWallets))
	sb.WriteString(fmt.Sprintf("| Error Records | %d |\n", r.Summary.ErrorRecords))
	sb.WriteString(fmt.Sprintf("| Active Wallets (12M) | %d |\n", r.Summary.ActiveWallets))
	sb.WriteString(fmt.Sprintf("| Total Volume (12M) | %s |\n", r.Summary.TotalVolume.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Total Gas Fee (USD) | %s |\n", r.Summary.TotalGasFee.StringFixed(2)))
	sb.WriteString("\n")

	// Per-wallet table
	sb.WriteString("## Wallets\n\n")
	if len(r.Records) > 0 {
		sb.WriteString("| Wallet | Tx (12M) | Volume (12M) | Monthly Avg | Last Tx | Categories | Gas (USD) | Error |\n")
		sb.WriteString("|--------|----------|--------------|-------------|---------|------------|-----------|-------|\n")
		for i := range r.Records {
			rec := &r.Records[i]
			lastTx := ""
			if rec.LastTxTime != nil {
				lastTx = rec.LastTxTime.UTC().Format("2006-01-02")
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %.4f | %s | %s | %s | %s |\n",
				rec.Wallet, rec.TxCount12M, rec.Volume12M.StringFixed(2),
				rec.MonthlyTxAvg, lastTx, strings.Join(rec.Categories, ", "),
				rec.GasFeeUSD.StringFixed(2), rec.Error))
		}
	} else {
		sb.WriteString("No wallets processed.\n")
	}
	sb.WriteString("\n")

	// Run errors
	if len(r.Errors) > 0 {
		sb.WriteString("## Run Errors\n\n")
		for _, err := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
