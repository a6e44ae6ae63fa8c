package assembler

import (
	"math/rand"
	"testing"
	"time"

	"pubg-account-watch/internal/detector"
)

func TestAssembleCollapsesDuplicates(t *testing.T) {
	dets := []detector.Detection{
		{ItemID: "awm-glacier", Name: "AWM-Glacier", RarityTier: 5, Confidence: 0.81, FrameIndex: 0},
		{ItemID: "awm-glacier", Name: "AWM-Glacier", RarityTier: 5, Confidence: 0.92, FrameIndex: 2},
		{ItemID: "kar98-gold", Name: "Kar98-Gold", RarityTier: 4, Confidence: 0.80, FrameIndex: 1},
	}

	profile := Assemble(dets, 100, 1, time.Now(), 3, 0)
	if len(profile.Items) != 2 {
		t.Fatalf("重复条目应合并, 实际 %d", len(profile.Items))
	}
	if profile.Items[0].ItemID != "awm-glacier" || profile.Items[0].Confidence != 0.92 {
		t.Fatalf("应保留最高置信度的检测: %#v", profile.Items[0])
	}
}

func TestAssembleTiePrefersEarlierFrame(t *testing.T) {
	dets := []detector.Detection{
		{ItemID: "m416-glacier", Confidence: 0.9, FrameIndex: 4},
		{ItemID: "m416-glacier", Confidence: 0.9, FrameIndex: 1},
	}

	profile := Assemble(dets, 100, 2, time.Now(), 5, 0)
	if len(profile.Items) != 1 || profile.Items[0].FrameIndex != 1 {
		t.Fatalf("同分时应保留较早的帧: %#v", profile.Items)
	}
}

func TestAssembleEmptyDetections(t *testing.T) {
	profile := Assemble(nil, 42, 7, time.Now(), 0, 0)
	if profile.ID == "" {
		t.Fatal("空 profile 也应有 ID")
	}
	if len(profile.Items) != 0 {
		t.Fatalf("无检测时 items 应为空: %#v", profile.Items)
	}
	if profile.SourceChatID != 42 || profile.MessageID != 7 {
		t.Fatalf("来源引用不正确: %#v", profile)
	}
}

func TestAssembleOrderIndependent(t *testing.T) {
	base := []detector.Detection{
		{ItemID: "awm-glacier", RarityTier: 5, Confidence: 0.92, FrameIndex: 0},
		{ItemID: "kar98-gold", RarityTier: 4, Confidence: 0.85, FrameIndex: 1},
		{ItemID: "set-pharaoh", RarityTier: 5, Confidence: 0.85, FrameIndex: 2},
		{ItemID: "awm-glacier", RarityTier: 5, Confidence: 0.78, FrameIndex: 3},
		{ItemID: "ump-ice", RarityTier: 3, Confidence: 0.76, FrameIndex: 1},
	}

	reference := Assemble(base, 1, 1, time.Unix(0, 0), 4, 0).Items

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]detector.Detection(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := Assemble(shuffled, 1, 1, time.Unix(0, 0), 4, 0).Items
		if len(got) != len(reference) {
			t.Fatalf("乱序组装后条目数不一致: %d vs %d", len(got), len(reference))
		}
		for i := range got {
			if got[i] != reference[i] {
				t.Fatalf("乱序组装结果应一致: %#v vs %#v", got[i], reference[i])
			}
		}
	}
}

func TestHasItemWithTier(t *testing.T) {
	profile := Assemble([]detector.Detection{
		{ItemID: "awm-glacier", RarityTier: 5, Confidence: 0.9},
		{ItemID: "ump-ice", RarityTier: 3, Confidence: 0.8},
	}, 1, 1, time.Now(), 1, 0)

	rare := profile.HasItemWithTier(4)
	if len(rare) != 1 || rare[0].ItemID != "awm-glacier" {
		t.Fatalf("tier>=4 应只命中 awm-glacier: %#v", rare)
	}
	if got := profile.HasItemWithTier(6); len(got) != 0 {
		t.Fatalf("tier>=6 不应命中: %#v", got)
	}
}
