package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/catalog"
)

func testConfig() Config {
	return Config{
		RarityStep:            decimal.NewFromFloat(0.15),
		ComboMinTier:          4,
		ComboMinCount:         2,
		ComboBonusPct:         decimal.NewFromFloat(0.10),
		ComboBonusCap:         decimal.NewFromFloat(0.50),
		UnknownItemSpread:     decimal.NewFromInt(50),
		FrameFailureSpreadPct: decimal.NewFromFloat(0.25),
	}
}

func itemWithMean(id string, tier int, mean int64, samples int) catalog.Item {
	item := catalog.NewItem(id, id, "weapon", tier, time.Unix(0, 0))
	for i := 0; i < samples; i++ {
		item.Stats.Observe(decimal.NewFromInt(mean), time.Unix(int64(i), 0), 30*24*time.Hour)
	}
	return item
}

func profileWith(items ...assembler.ProfileItem) *assembler.AccountProfile {
	return &assembler.AccountProfile{
		ID:          "p1",
		SubmittedAt: time.Unix(0, 0),
		Items:       items,
		FrameCount:  1,
	}
}

func TestPriceEmptyProfile(t *testing.T) {
	e := New(catalog.New(), testConfig())

	noMedia := &assembler.AccountProfile{ID: "p0"}
	if got := e.Price(noMedia); got.Reason != ReasonNoMedia || !got.Point.IsZero() {
		t.Fatalf("无媒体应返回零估价与 no_media: %#v", got)
	}

	noItems := &assembler.AccountProfile{ID: "p1", FrameCount: 2}
	if got := e.Price(noItems); got.Reason != ReasonNoItems || !got.Point.IsZero() {
		t.Fatalf("无条目应返回零估价与 no_items: %#v", got)
	}
}

func TestPriceSingleKnownItem(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(itemWithMean("awm-glacier", catalog.TierLegendary, 120, 3)); err != nil {
		t.Fatal(err)
	}
	e := New(cat, testConfig())

	est := e.Price(profileWith(assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5, Confidence: 0.92}))
	if est.Reason != ReasonOK {
		t.Fatalf("reason 应为 ok: %s", est.Reason)
	}

	// 120 * weight 1.0 * (1 + 0.15*4) = 192
	want := decimal.NewFromInt(192)
	if !est.Point.Equal(want) {
		t.Fatalf("点估价应为 %s, 实际 %s", want, est.Point)
	}
	if est.Low.GreaterThan(est.Point) || est.High.LessThan(est.Point) {
		t.Fatalf("区间应包含点估价: %#v", est)
	}
	if len(est.Breakdown) != 1 || est.Breakdown[0].Samples != 3 {
		t.Fatalf("breakdown 不正确: %#v", est.Breakdown)
	}
}

func TestPricePure(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(itemWithMean("awm-glacier", catalog.TierLegendary, 120, 2)); err != nil {
		t.Fatal(err)
	}
	if err := cat.Insert(itemWithMean("kar98-gold", catalog.TierEpic, 60, 2)); err != nil {
		t.Fatal(err)
	}
	e := New(cat, testConfig())

	profile := profileWith(
		assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5, Confidence: 0.9},
		assembler.ProfileItem{ItemID: "kar98-gold", RarityTier: 4, Confidence: 0.8},
	)

	first := e.Price(profile)
	for i := 0; i < 10; i++ {
		again := e.Price(profile)
		if !again.Point.Equal(first.Point) || !again.Low.Equal(first.Low) || !again.High.Equal(first.High) {
			t.Fatalf("状态不变时估价应逐次一致: %#v vs %#v", first, again)
		}
	}
}

func TestPriceComboBonus(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(itemWithMean("awm-glacier", catalog.TierLegendary, 100, 2)); err != nil {
		t.Fatal(err)
	}
	if err := cat.Insert(itemWithMean("kar98-gold", catalog.TierEpic, 100, 2)); err != nil {
		t.Fatal(err)
	}
	if err := cat.Insert(itemWithMean("ump-ice", catalog.TierRare, 100, 2)); err != nil {
		t.Fatal(err)
	}
	e := New(cat, testConfig())

	single := e.Price(profileWith(assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5}))
	lowTierPair := e.Price(profileWith(
		assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5},
		assembler.ProfileItem{ItemID: "ump-ice", RarityTier: 3},
	))
	highTierPair := e.Price(profileWith(
		assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5},
		assembler.ProfileItem{ItemID: "kar98-gold", RarityTier: 4},
	))

	// One qualifying item, or a mixed pair, earns no bonus.
	if !single.Point.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("单件估价应为 160: %s", single.Point)
	}
	sumNoBonus := decimal.NewFromInt(160 + 130)
	if !lowTierPair.Point.Equal(sumNoBonus) {
		t.Fatalf("低阶组合不应触发加成: %s", lowTierPair.Point)
	}

	// Two tier>=4 items: (160+145) * 1.10 = 335.5
	wantCombo := decimal.NewFromInt(305).Mul(decimal.NewFromFloat(1.10))
	if !highTierPair.Point.Equal(wantCombo) {
		t.Fatalf("高阶组合估价应为 %s, 实际 %s", wantCombo, highTierPair.Point)
	}
}

func TestPriceBandPoolsVariance(t *testing.T) {
	cat := catalog.New()
	a := itemWithMean("awm-glacier", catalog.TierLegendary, 100, 1)
	a.Stats.Variance = decimal.NewFromInt(9)
	b := itemWithMean("kar98-gold", catalog.TierEpic, 100, 1)
	b.Stats.Variance = decimal.NewFromInt(16)
	for _, it := range []catalog.Item{a, b} {
		if err := cat.Insert(it); err != nil {
			t.Fatal(err)
		}
	}
	e := New(cat, testConfig())

	est := e.Price(profileWith(
		assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5},
		assembler.ProfileItem{ItemID: "kar98-gold", RarityTier: 4},
	))

	// sqrt(9+16) = 5: variances pool before the root rather than summing
	// per-item deviations (which would give 3+4=7).
	spread := est.High.Sub(est.Point)
	if !spread.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("区间半宽应为 5, 实际 %s", spread)
	}
	if !est.Point.Sub(est.Low).Equal(spread) {
		t.Fatalf("区间应围绕点估价对称: %#v", est)
	}
}

func TestPriceUnknownItemWidensBand(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(itemWithMean("awm-glacier", catalog.TierLegendary, 120, 2)); err != nil {
		t.Fatal(err)
	}
	// No price samples at all.
	if err := cat.Insert(catalog.NewItem("set-pharaoh", "Pharaoh X-Suit", "outfit", catalog.TierLegendary, time.Unix(0, 0))); err != nil {
		t.Fatal(err)
	}
	e := New(cat, testConfig())

	known := e.Price(profileWith(assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5}))
	withUnknown := e.Price(profileWith(
		assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5},
		assembler.ProfileItem{ItemID: "set-pharaoh", RarityTier: 5},
	))

	// The unpriced item adds nothing to the base; only the tier-5 combo bonus
	// applies on top of the known item.
	wantPoint := known.Point.Mul(decimal.NewFromFloat(1.10))
	if !withUnknown.Point.Equal(wantPoint) {
		t.Fatalf("无历史价样本的条目不应改变点估价基数: 期望 %s, 实际 %s", wantPoint, withUnknown.Point)
	}
	knownSpread := known.High.Sub(known.Point)
	unknownSpread := withUnknown.High.Sub(withUnknown.Point)
	if !unknownSpread.GreaterThan(knownSpread) {
		t.Fatalf("未知条目应加宽区间: %s vs %s", unknownSpread, knownSpread)
	}
}

func TestPriceFailedFramesWidenBand(t *testing.T) {
	cat := catalog.New()
	item := itemWithMean("awm-glacier", catalog.TierLegendary, 120, 1)
	item.Stats.Observe(decimal.NewFromInt(140), time.Unix(100, 0), 30*24*time.Hour)
	if err := cat.Insert(item); err != nil {
		t.Fatal(err)
	}
	e := New(cat, testConfig())

	clean := profileWith(assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5})
	dirty := profileWith(assembler.ProfileItem{ItemID: "awm-glacier", RarityTier: 5})
	dirty.FailedFrames = 2

	cleanSpread := e.Price(clean).High.Sub(e.Price(clean).Point)
	dirtySpread := e.Price(dirty).High.Sub(e.Price(dirty).Point)
	if !dirtySpread.GreaterThan(cleanSpread) {
		t.Fatalf("解码失败帧应加宽区间: %s vs %s", dirtySpread, cleanSpread)
	}
}

func TestPriceLowNeverNegative(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(catalog.NewItem("set-pharaoh", "Pharaoh X-Suit", "outfit", catalog.TierLegendary, time.Unix(0, 0))); err != nil {
		t.Fatal(err)
	}
	e := New(cat, testConfig())

	est := e.Price(profileWith(assembler.ProfileItem{ItemID: "set-pharaoh", RarityTier: 5}))
	if est.Low.IsNegative() {
		t.Fatalf("低估价不应为负: %s", est.Low)
	}
	if !est.Point.IsZero() {
		t.Fatalf("仅未知条目时点估价应为零: %s", est.Point)
	}
}
