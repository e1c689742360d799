package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"wallet-feature-lab/internal/domain"
)

// FeatureHeader lists the feature CSV columns in output order.
var FeatureHeader = []string{
	"Wallet",
	"Total Tx Count (1M)",
	"Total Tx Count (3M)",
	"Total Tx Count (6M)",
	"Total Tx Count (12M)",
	"Monthly Tx Count Avg (12M)",
	"Total Tx Volume (1M)",
	"Total Tx Volume (3M)",
	"Total Tx Volume (6M)",
	"Total Tx Volume (12M)",
	"Monthly Tx Volume Avg (12M)",
	"Last Transaction Date",
	"Time Between Last 2 Transactions (hours)",
	"Token Categories (Last 250 Tx)",
	"Tx Types (Last 250 Tx)",
	"Total Gas Fee (USD)",
	"error",
}

// TransferHeader lists the per-wallet transfer CSV columns.
var TransferHeader = []string{
	"Timestamp",
	"Transaction Hash",
	"Direction",
	"Category",
	"Asset",
	"Amount",
	"From Address",
	"To Address",
	"Unique ID",
}

// RenderFeatureCSV renders feature records as CSV, one row per wallet,
// in the order given.
func RenderFeatureCSV(records []domain.WalletFeatureRecord) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(FeatureHeader)
	for i := range records {
		_ = w.Write(featureRow(&records[i]))
	}
	w.Flush()

	return sb.String()
}

func featureRow(r *domain.WalletFeatureRecord) []string {
	lastTxDate := ""
	if r.LastTxTime != nil {
		lastTxDate = r.LastTxTime.UTC().Format(time.RFC3339)
	}
	hoursBetween := ""
	if r.HoursBetweenLastTwo != nil {
		hoursBetween = strconv.FormatFloat(*r.HoursBetweenLastTwo, 'f', 2, 64)
	}

	return []string{
		r.Wallet,
		strconv.Itoa(r.TxCount1M),
		strconv.Itoa(r.TxCount3M),
		strconv.Itoa(r.TxCount6M),
		strconv.Itoa(r.TxCount12M),
		strconv.FormatFloat(r.MonthlyTxAvg, 'f', 4, 64),
		r.Volume1M.StringFixed(2),
		r.Volume3M.StringFixed(2),
		r.Volume6M.StringFixed(2),
		r.Volume12M.StringFixed(2),
		r.MonthlyVolumeAvg.StringFixed(4),
		lastTxDate,
		hoursBetween,
		strings.Join(r.Categories, ","),
		strings.Join(r.TxTypes, ","),
		r.GasFeeUSD.StringFixed(2),
		r.Error,
	}
}

// RenderTransferCSV renders one wallet's transfer history as CSV.
// Direction is relative to the wallet: out when it is the sender,
// in when it is the recipient.
func RenderTransferCSV(wallet string, transfers []domain.TransferRecord) string {
	wallet = strings.ToLower(wallet)

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	_ = w.Write(TransferHeader)
	for i := range transfers {
		tr := &transfers[i]
		_ = w.Write([]string{
			tr.Timestamp.UTC().Format(time.RFC3339),
			tr.Hash,
			transferDirection(wallet, tr),
			strings.ToUpper(tr.RawHint),
			tr.Asset,
			tr.Amount.String(),
			tr.From,
			tr.To,
			tr.UniqueID,
		})
	}
	w.Flush()

	return sb.String()
}

func transferDirection(wallet string, tr *domain.TransferRecord) string {
	switch {
	case tr.From == wallet:
		return "out"
	case tr.To == wallet:
		return "in"
	default:
		return "unknown"
	}
}
