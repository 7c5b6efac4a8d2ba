package binance

// MiniTicker is a 24hr rolling mini-ticker event from the market stream.
type MiniTicker struct {
	EventType  string `json:"e"` // "24hrMiniTicker"
	EventTime  int64  `json:"E"` // milliseconds since epoch
	Symbol     string `json:"s"` // e.g. "BTCUSDT"
	ClosePrice string `json:"c"` // last price
	OpenPrice  string `json:"o"`
	HighPrice  string `json:"h"`
	LowPrice   string `json:"l"`
}

// subscribeRequest is the stream control frame used to join a topic.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}
