package fixedrate

import (
	"math/big"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		amount   *big.Int
		from, to uint8
		want     *big.Int
	}{
		{big.NewInt(5), 6, 18, units(5, 12)},
		{units(5, 12), 18, 6, big.NewInt(5)},
		{big.NewInt(1_999_999_999_999), 18, 6, big.NewInt(1)},
		{big.NewInt(999_999_999_999), 18, 6, big.NewInt(0)},
		{big.NewInt(42), 8, 8, big.NewInt(42)},
		{nil, 0, 18, big.NewInt(0)},
	}
	for _, tc := range cases {
		got := Normalize(tc.amount, tc.from, tc.to)
		if got.Cmp(tc.want) != 0 {
			t.Fatalf("normalize(%v, %d, %d): got %s, want %s", tc.amount, tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNormalizeRoundTripIsIdempotentAtLowerPrecision(t *testing.T) {
	original := big.NewInt(123_456_789_012_345_678)
	down := Normalize(original, 18, 6)
	back := Normalize(down, 6, 18)
	if back.Cmp(original) > 0 {
		t.Fatalf("round trip minted value: %s > %s", back, original)
	}
	if again := Normalize(back, 18, 6); again.Cmp(down) != 0 {
		t.Fatalf("second round trip drifted: %s != %s", again, down)
	}
}

func TestPriceZeroRate(t *testing.T) {
	p := Price(PriceInput{
		Amount:          units(10_000, 18),
		FixedRate:       big.NewInt(0),
		ProtocolFeeRate: MaxFeeRate,
		MarketFeeRate:   MaxFeeRate,
		DataDecimals:    18,
		BaseDecimals:    6,
	})
	for label, v := range map[string]*big.Int{"gross": p.Gross, "protocol": p.ProtocolFee, "market": p.MarketFee, "net": p.Net} {
		if v.Sign() != 0 {
			t.Fatalf("%s must be zero for a zero rate, got %s", label, v)
		}
	}
	expectAmount(t, "data amount", p.DataAmount, units(10_000, 18))
}

func TestPriceAcrossDecimals(t *testing.T) {
	p := Price(PriceInput{
		Amount:          units(1, 18),
		FixedRate:       units(2, 18),
		ProtocolFeeRate: big.NewInt(1_000_000_000_000_000),
		MarketFeeRate:   big.NewInt(10_000_000_000_000_000),
		DataDecimals:    18,
		BaseDecimals:    6,
	})
	expectAmount(t, "gross", p.Gross, big.NewInt(2_000_000))
	expectAmount(t, "protocol fee", p.ProtocolFee, big.NewInt(2_000))
	expectAmount(t, "market fee", p.MarketFee, big.NewInt(20_000))
	expectAmount(t, "net", p.Net, big.NewInt(1_978_000))
}

func TestPriceFloorsFeesIntoNet(t *testing.T) {
	p := Price(PriceInput{
		Amount:          big.NewInt(999),
		FixedRate:       FixedPointBase,
		ProtocolFeeRate: MaxFeeRate,
		MarketFeeRate:   big.NewInt(33_333_333_333_333_333),
		DataDecimals:    0,
		BaseDecimals:    0,
	})
	expectAmount(t, "gross", p.Gross, big.NewInt(999))
	expectAmount(t, "protocol fee", p.ProtocolFee, big.NewInt(99))
	expectAmount(t, "market fee", p.MarketFee, big.NewInt(33))
	expectAmount(t, "net", p.Net, big.NewInt(867))
}

func TestPriceSumIdentity(t *testing.T) {
	rates := []*big.Int{big.NewInt(1), big.NewInt(7_777_777), units(3, 17), units(1, 18), units(12345, 18)}
	fees := []*big.Int{nil, big.NewInt(1), big.NewInt(99_999_999_999_999_999), MaxFeeRate}
	amounts := []*big.Int{big.NewInt(1), big.NewInt(1_000_003), units(7, 18)}
	decimals := [][2]uint8{{18, 18}, {18, 6}, {6, 18}, {0, 8}}
	for _, rate := range rates {
		for _, pf := range fees {
			for _, mf := range fees {
				for _, amount := range amounts {
					for _, d := range decimals {
						p := Price(PriceInput{Amount: amount, FixedRate: rate, ProtocolFeeRate: pf, MarketFeeRate: mf, DataDecimals: d[0], BaseDecimals: d[1]})
						if p.ProtocolFee.Sign() < 0 || p.MarketFee.Sign() < 0 || p.Net.Sign() < 0 {
							t.Fatalf("negative component for rate=%s amount=%s: %+v", rate, amount, p)
						}
						sum := new(big.Int).Add(p.ProtocolFee, p.MarketFee)
						sum.Add(sum, p.Net)
						if sum.Cmp(p.Gross) != 0 {
							t.Fatalf("sum identity violated: %s != %s", sum, p.Gross)
						}
					}
				}
			}
		}
	}
}

func TestPriceClampsOversizedFees(t *testing.T) {
	p := Price(PriceInput{
		Amount:          big.NewInt(100),
		FixedRate:       FixedPointBase,
		ProtocolFeeRate: units(6, 17),
		MarketFeeRate:   units(6, 17),
	})
	expectAmount(t, "protocol fee", p.ProtocolFee, big.NewInt(60))
	expectAmount(t, "market fee", p.MarketFee, big.NewInt(40))
	expectAmount(t, "net", p.Net, big.NewInt(0))
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(" BUY "); err != nil || d != DirectionBuy {
		t.Fatalf("parse buy: %v %v", d, err)
	}
	if d, err := ParseDirection("sell"); err != nil || d != DirectionSell {
		t.Fatalf("parse sell: %v %v", d, err)
	}
	if _, err := ParseDirection("hold"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}
