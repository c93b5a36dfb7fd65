package provider

// PriceTier は画素数の上限と1枚あたりの単価（元）なのだ。
type PriceTier struct {
	MaxPixels int
	UnitCost  float64
}

// PriceTable は画素数で段階的に単価が決まる料金表なのだ。
type PriceTable struct {
	Tiers []PriceTier // MaxPixels の昇順
	Above float64     // どの段階にも収まらないときの単価
}

// UnitCost は1枚あたりの単価を返すのだ。
func (t PriceTable) UnitCost(width, height int) float64 {
	pixels := width * height
	for _, tier := range t.Tiers {
		if pixels <= tier.MaxPixels {
			return tier.UnitCost
		}
	}
	return t.Above
}

// Cost は枚数分の費用を返すのだ。
func (t PriceTable) Cost(width, height, count int) float64 {
	if count <= 0 {
		return 0
	}
	return t.UnitCost(width, height) * float64(count)
}

var (
	AliyunPrices = PriceTable{
		Tiers: []PriceTier{{MaxPixels: 512 * 512, UnitCost: 0.02}, {MaxPixels: 1024 * 1024, UnitCost: 0.06}},
		Above: 0.08,
	}
	VolcanoPrices = PriceTable{
		Tiers: []PriceTier{{MaxPixels: 512 * 512, UnitCost: 0.04}, {MaxPixels: 1024 * 1024, UnitCost: 0.10}},
		Above: 0.14,
	}
)
