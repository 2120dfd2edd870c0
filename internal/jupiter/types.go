package jupiter

import "encoding/json"

// Quote is the swap API's quote response. The full payload is kept opaque
// and echoed back verbatim to the build endpoint; only the fields the engine
// inspects are parsed out.
type Quote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`  // base units, decimal string
	OutAmount      string `json:"outAmount"` // base units, decimal string
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`

	Raw json.RawMessage `json:"-"` // verbatim response body
}

// PriorityFee is the fee-recommendation response, in micro-lamports per
// compute unit.
type PriorityFee struct {
	Low    uint64 `json:"low"`
	Medium uint64 `json:"medium"`
	High   uint64 `json:"high"`
}

// SwapTransactions is the build endpoint's response: one or more unsigned
// base64 transaction payloads plus the declared wire format.
type SwapTransactions struct {
	Version      string   // "legacy" | "versioned" as declared by the API
	Transactions []string // base64 payloads, submission order
}

// swapRequest is the build endpoint's request body.
type swapRequest struct {
	QuoteResponse                 json.RawMessage `json:"quoteResponse"`
	UserPublicKey                 string          `json:"userPublicKey"`
	WrapAndUnwrapSol              bool            `json:"wrapAndUnwrapSol"`
	ComputeUnitPriceMicroLamports uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
}

// swapResponse tolerates both single-transaction and multi-transaction
// response shapes.
type swapResponse struct {
	SwapTransaction string   `json:"swapTransaction"`
	Transactions    []string `json:"transactions"`
	Version         string   `json:"version"`
}
