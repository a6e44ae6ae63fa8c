package learning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/catalog"
)

func testOptions() Options {
	return Options{
		PriceHalfLife:       30 * 24 * time.Hour,
		WeightStep:          0.10,
		WeightMin:           0.25,
		WeightMax:           4.0,
		RejectThresholdStep: 0.02,
		ThresholdCeiling:    0.95,
		BaseThreshold:       0.75,
		DedupDistance:       6,
	}
}

func newTestSystem(cat *catalog.Catalog) *System {
	return New(cat, nil, testOptions(), zerolog.Nop())
}

// cellImage paints a visually distinct pattern per seed; different seeds
// produce signatures far apart in hamming distance.
func cellImage(seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*(seed*7+3) + y*(seed*13+5)) % 251)
			img.Set(x, y, color.RGBA{R: v, G: 255 - v, B: uint8(seed * 37), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码测试图像失败: %v", err)
	}
	return buf.Bytes()
}

// gridImage composes cells into a rows x cols sheet, placed by the perm
// order.
func gridImage(t *testing.T, rows, cols int, seeds []int) []byte {
	t.Helper()
	const cell = 64
	sheet := image.NewRGBA(image.Rect(0, 0, cols*cell, rows*cell))
	for i, seed := range seeds {
		r, c := i/cols, i%cols
		src := cellImage(seed)
		for y := 0; y < cell; y++ {
			for x := 0; x < cell; x++ {
				sheet.Set(c*cell+x, r*cell+y, src.At(x, y))
			}
		}
	}
	return encodePNG(t, sheet)
}

func TestRegisterItemNewEntry(t *testing.T) {
	cat := catalog.New()
	sys := newTestSystem(cat)

	item, err := sys.RegisterItem(context.Background(), encodePNG(t, cellImage(1)), ItemMeta{
		Name: "AWM Glacier", Category: "weapon", RarityTier: catalog.TierLegendary,
	})
	if err != nil {
		t.Fatalf("注册不应报错: %v", err)
	}
	if item.ID != "awm-glacier" {
		t.Fatalf("id 应由名称派生, 实际 %q", item.ID)
	}
	if len(item.Templates) != 1 || !item.Active {
		t.Fatalf("新条目状态不正确: %#v", item)
	}
	if !item.Weight.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("初始权重应为 1.0: %s", item.Weight)
	}
}

func TestRegisterItemDedupesIntoTemplate(t *testing.T) {
	cat := catalog.New()
	sys := newTestSystem(cat)

	img := encodePNG(t, cellImage(2))
	first, err := sys.RegisterItem(context.Background(), img, ItemMeta{Name: "Kar98 Gold"})
	if err != nil {
		t.Fatal(err)
	}

	// Same image again: identical signature, must fold into the same item
	// without adding a duplicate template.
	second, err := sys.RegisterItem(context.Background(), img, ItemMeta{Name: "Something Else"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("近似图像应并入已有条目: %q vs %q", second.ID, first.ID)
	}
	if cat.Len() != 1 {
		t.Fatalf("目录应只有一个条目, 实际 %d", cat.Len())
	}
	if len(second.Templates) != 1 {
		t.Fatalf("完全相同的签名不应重复存模板: %d", len(second.Templates))
	}
}

func TestRegisterItemCorruptImage(t *testing.T) {
	sys := newTestSystem(catalog.New())
	if _, err := sys.RegisterItem(context.Background(), []byte("junk"), ItemMeta{Name: "x"}); err == nil {
		t.Fatal("损坏图像应报错")
	}
}

func TestRegisterBatchOrderIndependent(t *testing.T) {
	seeds := []int{1, 2, 3, 4, 5, 6}
	perms := [][]int{
		{1, 2, 3, 4, 5, 6},
		{6, 5, 4, 3, 2, 1},
		{3, 1, 6, 2, 5, 4},
	}

	// Tight dedup distance so visually distinct cells always stay distinct
	// items regardless of hash proximity.
	opts := testOptions()
	opts.DedupDistance = 1

	var reference []catalog.Item
	for trial, perm := range perms {
		cat := catalog.New()
		sys := New(cat, nil, opts, zerolog.Nop())
		if _, err := sys.RegisterBatch(context.Background(), gridImage(t, 2, 3, perm), ItemMeta{Category: "outfit"}, 2, 3); err != nil {
			t.Fatalf("批量注册失败 (perm %d): %v", trial, err)
		}

		items := cat.Items()
		if len(items) != len(seeds) {
			t.Fatalf("应注册 %d 个条目, 实际 %d (perm %d)", len(seeds), len(items), trial)
		}
		if reference == nil {
			reference = items
			continue
		}
		for i := range items {
			if items[i].ID != reference[i].ID || len(items[i].Templates) != len(reference[i].Templates) {
				t.Fatalf("乱序批量注册应得到相同目录: %q vs %q", items[i].ID, reference[i].ID)
			}
			if items[i].Templates[0].Hash != reference[i].Templates[0].Hash {
				t.Fatalf("模板签名应一致: %x vs %x", items[i].Templates[0].Hash, reference[i].Templates[0].Hash)
			}
		}
	}
}

func TestApplyCorrectionUnknownItem(t *testing.T) {
	sys := newTestSystem(catalog.New())
	err := sys.ApplyCorrection(context.Background(), Correction{Kind: CorrectionConfirm, ItemID: "ghost"})
	if !errors.Is(err, ErrInvalidCorrection) {
		t.Fatalf("未知条目应返回 ErrInvalidCorrection: %v", err)
	}
}

func TestApplyCorrectionInvalidPrice(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(catalog.NewItem("awm-glacier", "AWM-Glacier", "weapon", 5, time.Now())); err != nil {
		t.Fatal(err)
	}
	sys := newTestSystem(cat)

	err := sys.ApplyCorrection(context.Background(), Correction{
		Kind: CorrectionPrice, ItemID: "awm-glacier", ObservedPrice: decimal.NewFromInt(-5),
	})
	if !errors.Is(err, ErrInvalidCorrection) {
		t.Fatalf("负价格应被拒绝: %v", err)
	}

	item, _ := cat.Snapshot("awm-glacier")
	if item.Stats.HasSamples() {
		t.Fatal("被拒绝的修正不应改动目录")
	}
}

func TestConfirmOnlyBumpsTally(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(catalog.NewItem("awm-glacier", "AWM-Glacier", "weapon", 5, time.Now())); err != nil {
		t.Fatal(err)
	}
	sys := newTestSystem(cat)

	if err := sys.ApplyCorrection(context.Background(), Correction{Kind: CorrectionConfirm, ItemID: "awm-glacier"}); err != nil {
		t.Fatal(err)
	}

	item, _ := cat.Snapshot("awm-glacier")
	if item.ConfirmCount != 1 {
		t.Fatalf("confirm 应只增加计数: %d", item.ConfirmCount)
	}
	if !item.Weight.Equal(decimal.NewFromInt(1)) || item.AcceptThreshold != 0 {
		t.Fatalf("confirm 不应改动权重或阈值: %#v", item)
	}
}

func TestRejectRaisesThresholdAndFlagsTemplate(t *testing.T) {
	cat := catalog.New()
	item := catalog.NewItem("kar98-gold", "Kar98-Gold", "weapon", 4, time.Now())
	item.AddTemplate(0xdead, "phash", time.Now())
	if err := cat.Insert(item); err != nil {
		t.Fatal(err)
	}
	sys := newTestSystem(cat)

	if err := sys.ApplyCorrection(context.Background(), Correction{
		Kind: CorrectionReject, ItemID: "kar98-gold", TemplateHash: 0xdead,
	}); err != nil {
		t.Fatal(err)
	}

	got, _ := cat.Snapshot("kar98-gold")
	if got.AcceptThreshold != 0.77 {
		t.Fatalf("阈值应为 base 0.75 + step 0.02, 实际 %v", got.AcceptThreshold)
	}
	if !got.Templates[0].Flagged {
		t.Fatal("被拒绝的模板应标记待审")
	}

	// Repeated rejects saturate at the ceiling.
	for i := 0; i < 20; i++ {
		if err := sys.ApplyCorrection(context.Background(), Correction{Kind: CorrectionReject, ItemID: "kar98-gold"}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ = cat.Snapshot("kar98-gold")
	if got.AcceptThreshold > 0.95 {
		t.Fatalf("阈值不应超过上限: %v", got.AcceptThreshold)
	}
}

func TestPriceCorrectionBoundedStep(t *testing.T) {
	cat := catalog.New()
	item := catalog.NewItem("awm-glacier", "AWM-Glacier", "weapon", 5, time.Now())
	item.Stats.Observe(decimal.NewFromInt(120), time.Now().Add(-time.Hour), 30*24*time.Hour)
	if err := cat.Insert(item); err != nil {
		t.Fatal(err)
	}
	sys := newTestSystem(cat)

	before, _ := cat.Snapshot("awm-glacier")
	err := sys.ApplyCorrection(context.Background(), Correction{
		Kind:           CorrectionPrice,
		ItemID:         "awm-glacier",
		ObservedPrice:  decimal.NewFromInt(150),
		EstimatedPrice: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	after, _ := cat.Snapshot("awm-glacier")
	if !after.Stats.Mean.GreaterThan(before.Stats.Mean) {
		t.Fatalf("均值应严格上升: %s -> %s", before.Stats.Mean, after.Stats.Mean)
	}
	if after.Stats.Mean.GreaterThan(decimal.NewFromInt(150)) {
		t.Fatalf("均值不应越过观测值: %s", after.Stats.Mean)
	}

	// Ratio 1.5 is clamped to the 10% step: weight 1.0 -> 1.1, never 1.5.
	if !after.Weight.Equal(decimal.NewFromFloat(1.1)) {
		t.Fatalf("权重步长应被钳制到 1.1, 实际 %s", after.Weight)
	}
}

func TestWeightClampBounds(t *testing.T) {
	cat := catalog.New()
	if err := cat.Insert(catalog.NewItem("ump-ice", "UMP-Ice", "weapon", 3, time.Now())); err != nil {
		t.Fatal(err)
	}
	sys := newTestSystem(cat)

	// Hammer the weight downward; it must stop at WeightMin.
	for i := 0; i < 50; i++ {
		err := sys.ApplyCorrection(context.Background(), Correction{
			Kind:           CorrectionPrice,
			ItemID:         "ump-ice",
			ObservedPrice:  decimal.NewFromInt(1),
			EstimatedPrice: decimal.NewFromInt(1000),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	item, _ := cat.Snapshot("ump-ice")
	if !item.Weight.Equal(decimal.NewFromFloat(0.25)) {
		t.Fatalf("权重应停在下限 0.25, 实际 %s", item.Weight)
	}
}
