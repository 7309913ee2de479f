package domain

import (
	"encoding/json"
	"testing"
)

func TestBatchResult_Succeeded(t *testing.T) {
	t.Run("成功したエントリだけを数えるのだ", func(t *testing.T) {
		b := BatchResult{
			Success: true,
			Characters: []GenerationResult{
				{Success: true, GeneratedImageURL: "https://img/1"},
				NewFailure("https://x/2.jpg", "boom"),
				{Success: true, GeneratedImageURL: "https://img/3"},
			},
		}
		if got := b.Succeeded(); got != 2 {
			t.Errorf("expected 2, got %d", got)
		}
	})
}

func TestGenerationResult_JSONFieldNames(t *testing.T) {
	t.Run("失敗エントリは imageUrl と error を持つのだ", func(t *testing.T) {
		raw, err := json.Marshal(NewFailure("https://x/test.jpg", "quota"))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if m["imageUrl"] != "https://x/test.jpg" || m["error"] != "quota" || m["success"] != false {
			t.Errorf("unexpected JSON: %s", raw)
		}
		if _, ok := m["generatedImageUrl"]; ok {
			t.Errorf("generatedImageUrl should be omitted on failure: %s", raw)
		}
	})
}
