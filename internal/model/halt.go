package model

// TradingHalt is one entry of an exchange halt list.
type TradingHalt struct {
	Symbol   string `json:"symbol"`
	HaltTime string `json:"halt_time"`
	Code     string `json:"halt_code"`
	Reason   string `json:"reason"`
	Exchange string `json:"exchange"`
}
