package model

// TokenMeta describes a pooled asset. Address is informational and does not
// take part in equality.
type TokenMeta struct {
	Address  string `json:"address,omitempty"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// SameToken reports whether two descriptors are structurally equal.
func (m TokenMeta) SameToken(other TokenMeta) bool {
	return m.Name == other.Name && m.Symbol == other.Symbol && m.Decimals == other.Decimals
}
