package terminal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// The terminal answers with a pseudo-JSON of its own: records wrapped
// in square brackets, `key=value` pairs, nothing quoted, and decimal
// commas in every money field. normalize rewrites that into strict
// JSON so the reply can be unmarshalled like any other API response.
//
//	[Symbol=AAPL, Pos=100, PosAvgPrice=187,32][Symbol=MSFT, ...]
//
// becomes
//
//	[{"Symbol":"AAPL","Pos":100,"PosAvgPrice":187.32},{"Symbol":"MSFT",...}]

var (
	decimalCommaRe = regexp.MustCompile(`(Price|PosAvgPrice|LastPrice|AvgPrice|Unrealized|NetPnl|GrossPnl)=(-?\d+),(\d+)`)
	keyRe          = regexp.MustCompile(`([{,])([A-Za-z]\w*):`)
	bareValueRe    = regexp.MustCompile(`:([A-Za-z][\w.\-]*)`)
)

func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	// Decimal commas first, while `=` still separates them from the
	// record-level commas.
	s = decimalCommaRe.ReplaceAllString(s, "$1=$2.$3")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "[", "{")
	s = strings.ReplaceAll(s, "]", "}")
	s = strings.ReplaceAll(s, "=", ":")
	s = strings.ReplaceAll(s, "}{", "},{")
	s = keyRe.ReplaceAllString(s, `$1"$2":`)
	s = bareValueRe.ReplaceAllString(s, `:"$1"`)
	if !strings.HasPrefix(s, "[") {
		s = "[" + s + "]"
	}
	return s
}

type positionReply struct {
	Symbol      string  `json:"Symbol"`
	Pos         float64 `json:"Pos"`
	PosAvgPrice float64 `json:"PosAvgPrice"`
	LastPrice   float64 `json:"LastPrice"`
	Unrealized  float64 `json:"Unrealized"`
}

func decodePositions(body []byte) ([]positionReply, error) {
	s := normalize(string(body))
	var out []positionReply
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode positions %q: %w", s, err)
	}
	return out, nil
}

type orderReply struct {
	OrderID string  `json:"OrderId"`
	Symbol  string  `json:"Symbol"`
	Status  string  `json:"Status"`
	Price   float64 `json:"Price"`
}

func decodeOrders(body []byte) ([]orderReply, error) {
	s := normalize(string(body))
	var out []orderReply
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode orders %q: %w", s, err)
	}
	return out, nil
}
