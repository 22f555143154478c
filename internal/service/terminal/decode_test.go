package terminal

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single position",
			in:   "[Symbol=AAPL, Pos=100, PosAvgPrice=187,32, LastPrice=188,10, Unrealized=78,0]",
			want: `[{"Symbol":"AAPL","Pos":100,"PosAvgPrice":187.32,"LastPrice":188.10,"Unrealized":78.0}]`,
		},
		{
			name: "multiple records",
			in:   "[Symbol=AAPL, Pos=100][Symbol=MSFT, Pos=-50]",
			want: `[{"Symbol":"AAPL","Pos":100},{"Symbol":"MSFT","Pos":-50}]`,
		},
		{
			name: "negative money value",
			in:   "[Symbol=TSLA, Unrealized=-4,25]",
			want: `[{"Symbol":"TSLA","Unrealized":-4.25}]`,
		},
		{
			name: "order reply",
			in:   "[OrderId=A1234, Symbol=AAPL, Status=Working, Price=101,50]",
			want: `[{"OrderId":"A1234","Symbol":"AAPL","Status":"Working","Price":101.50}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(tt.in); got != tt.want {
				t.Errorf("normalize(%q)\n got %s\nwant %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodePositions(t *testing.T) {
	body := []byte("[Symbol=AAPL, Pos=100, PosAvgPrice=187,32, LastPrice=188,10, Unrealized=78,0]" +
		"[Symbol=MSFT, Pos=-50, PosAvgPrice=402,00, LastPrice=401,10, Unrealized=45,0]")

	got, err := decodePositions(body)
	if err != nil {
		t.Fatalf("decodePositions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("positions = %+v, want 2", got)
	}
	if got[0].Symbol != "AAPL" || got[0].Pos != 100 || got[0].PosAvgPrice != 187.32 {
		t.Errorf("first position = %+v", got[0])
	}
	if got[1].Symbol != "MSFT" || got[1].Pos != -50 || got[1].Unrealized != 45 {
		t.Errorf("second position = %+v", got[1])
	}
}

func TestDecodeOrders(t *testing.T) {
	body := []byte("[OrderId=A1234, Symbol=AAPL, Status=Filled, Price=101,50]")

	got, err := decodeOrders(body)
	if err != nil {
		t.Fatalf("decodeOrders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("orders = %+v, want 1", got)
	}
	if got[0].OrderID != "A1234" || got[0].Status != "Filled" || got[0].Price != 101.5 {
		t.Errorf("order = %+v", got[0])
	}
}

func TestDecodeMalformedBodyFails(t *testing.T) {
	if _, err := decodePositions([]byte("server error")); err == nil {
		t.Fatal("expected error for a non-record body")
	}
}

func TestCommaPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{101.5, "101,50"},
		{20, "20,00"},
		{0.125, "0,13"},
	}
	for _, tt := range tests {
		if got := commaPrice(tt.in); got != tt.want {
			t.Errorf("commaPrice(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
