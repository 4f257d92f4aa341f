package binance

// tickerPriceResponse is the /api/v3/ticker/price payload.
type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// exchangeInfoResponse carries the filters needed for lot-size adjustment.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol             string `json:"symbol"`
		BaseAssetPrecision int    `json:"baseAssetPrecision"`
		QuotePrecision     int    `json:"quoteAssetPrecision"`
		Filters            []struct {
			FilterType string `json:"filterType"`
			MinQty     string `json:"minQty"`
			MaxQty     string `json:"maxQty"`
			StepSize   string `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// symbolInfo is the normalized sizing metadata for one symbol.
type symbolInfo struct {
	MinQty   float64
	MaxQty   float64
	StepSize float64
}

// withdrawApplyResponse is the /sapi/v1/capital/withdraw/apply payload.
type withdrawApplyResponse struct {
	ID string `json:"id"`
}

// withdrawRecord is one entry of /sapi/v1/capital/withdraw/history.
// Status 6 means "Completed".
type withdrawRecord struct {
	ID             string `json:"id"`
	Amount         string `json:"amount"`
	TransactionFee string `json:"transactionFee"`
	Coin           string `json:"coin"`
	Status         int    `json:"status"`
	TxID           string `json:"txId"`
}

const withdrawStatusCompleted = 6

// miniTickerEvent is one message of the <symbol>@miniTicker stream.
type miniTickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// combinedStreamMessage wraps events from the multiplexed /stream endpoint.
type combinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   miniTickerEvent `json:"data"`
}
