package domain

// Category classifies the asset involved in a transfer.
type Category string

// Asset categories. Provider hints are mapped onto this closed set;
// anything unrecognized becomes CategoryExternal.
const (
	CategoryNative     Category = "NATIVE"
	CategoryERC20      Category = "ERC20"
	CategoryStablecoin Category = "STABLECOIN"
	CategoryNFT        Category = "NFT"
	CategoryExternal   Category = "EXTERNAL"
)

// TxType classifies transaction intent inferred from participants.
type TxType string

// Transaction types. Exactly one type is assigned per transfer.
const (
	TxTypeSelf                TxType = "SELF"
	TxTypeContractInteraction TxType = "CONTRACT_INTERACTION"
	TxTypeTransfer            TxType = "TRANSFER"
)
