package coinbase

// tickerResponse is the product ticker payload.
type tickerResponse struct {
	Price string `json:"price"`
}

// previewResponse is the order preview payload. Only the fields the preview
// interpreter consumes are decoded.
type previewResponse struct {
	OrderTotal      string `json:"order_total"`
	CommissionTotal string `json:"commission_total"`
	BaseSize        string `json:"base_size"`
	Slippage        string `json:"slippage"`
}

// productResponse carries the sizing metadata for one product.
type productResponse struct {
	ProductID       string `json:"product_id"`
	QuoteCurrencyID string `json:"quote_currency_id"`
	BaseMinSize     string `json:"base_min_size"`
	BaseMaxSize     string `json:"base_max_size"`
	BaseIncrement   string `json:"base_increment"`
	QuoteIncrement  string `json:"quote_increment"`
}

// withdrawalStatus is the subset of a withdrawal record used to decide
// whether the transfer completed.
type withdrawalStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
