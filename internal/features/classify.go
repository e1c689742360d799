package features

import (
	"sort"

	"wallet-feature-lab/internal/domain"
)

// DefaultClassifyLimit is the recent-transfer depth considered for
// category and type classification.
const DefaultClassifyLimit = 250

// KnownRouters is the fixed set of DEX router contracts treated as
// contract-interaction counterparts.
var KnownRouters = map[string]struct{}{
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": {}, // Uniswap V2
	"0xe592427a0aece92de3edee1f18e0157c05861564": {}, // Uniswap V3 router
	"0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45": {}, // Uniswap V3 periphery
	"0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f": {}, // Sushi
}

// hintCategories is the closed mapping from provider hints to categories.
// Unrecognized hints on contract transfers fall through to EXTERNAL.
var hintCategories = map[string]domain.Category{
	"erc20":      domain.CategoryERC20,
	"stablecoin": domain.CategoryStablecoin,
	"erc721":     domain.CategoryNFT,
	"erc1155":    domain.CategoryNFT,
	"specialnft": domain.CategoryNFT,
}

// Classify derives the category and transaction-type sets from the most
// recent transfers of a wallet. Only the newest `limit` transfers are
// considered (timestamp descending, hash order breaking ties); limit <= 0
// uses DefaultClassifyLimit. Empty input yields empty sets, not an error.
func Classify(wallet string, transfers []domain.TransferRecord, limit int) ([]string, []string) {
	if limit <= 0 {
		limit = DefaultClassifyLimit
	}

	recent := make([]domain.TransferRecord, len(transfers))
	copy(recent, transfers)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].Timestamp.Equal(recent[j].Timestamp) {
			return recent[i].Timestamp.After(recent[j].Timestamp)
		}
		return recent[i].Hash < recent[j].Hash
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}

	categories := make(map[domain.Category]struct{})
	txTypes := make(map[domain.TxType]struct{})
	for _, tr := range recent {
		categories[categorize(tr)] = struct{}{}
		txTypes[typeOf(wallet, tr)] = struct{}{}
	}

	return sortedCategories(categories), sortedTypes(txTypes)
}

// categorize maps one transfer to its token category.
func categorize(tr domain.TransferRecord) domain.Category {
	if tr.Native() {
		return domain.CategoryNative
	}
	if cat, ok := hintCategories[tr.RawHint]; ok {
		return cat
	}
	return domain.CategoryExternal
}

// typeOf infers the transaction type from direction and counterpart.
// Exactly one type is assigned per transfer.
func typeOf(wallet string, tr domain.TransferRecord) domain.TxType {
	if tr.From == wallet && tr.To == wallet {
		return domain.TxTypeSelf
	}
	if tr.From == wallet {
		if _, ok := KnownRouters[tr.To]; ok {
			return domain.TxTypeContractInteraction
		}
	}
	return domain.TxTypeTransfer
}

func sortedCategories(set map[domain.Category]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

func sortedTypes(set map[domain.TxType]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
