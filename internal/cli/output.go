package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shouni/gemini-character-kit/internal/logging"
	"github.com/shouni/gemini-character-kit/pkg/domain"
)

const (
	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"
)

// ComponentStatus は check コマンドの各項目の結果です。
type ComponentStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ConnectionReport は check コマンドの出力です。
type ConnectionReport struct {
	Environment ComponentStatus `json:"environment"`
	Gemini      ComponentStatus `json:"gemini"`
	Storage     ComponentStatus `json:"storage"`
	GCS         ComponentStatus `json:"gcs"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// reportBatch はバッチ結果を1件ずつ色付きで表示します。
func reportBatch(res *domain.BatchResult) {
	total := len(res.Characters)
	for i, c := range res.Characters {
		if c.Success {
			logging.Success(fmt.Sprintf("%d/%d %s", i+1, total, c.SourceImageURL))
			continue
		}
		logging.Error(fmt.Sprintf("%d/%d %s: %s", i+1, total, c.SourceImageURL, c.Error))
	}

	summary := fmt.Sprintf("%d/%d 件のキャラクターを生成しました", res.Succeeded(), total)
	if res.Succeeded() == total {
		logging.Success(summary)
	} else {
		logging.Warn(summary)
	}
}

func (r *runner) checkConnections(ctx context.Context) ConnectionReport {
	cfg := r.app.Config
	report := ConnectionReport{
		Environment: ComponentStatus{
			Status:  statusOK,
			Message: "environment loaded",
			Details: map[string]any{
				"GOOGLE_API_KEY": cfg.APIKey != "",
				"GEMINI_MODEL":   cfg.Model,
				"STORAGE_BUCKET": cfg.Storage.Bucket != "",
				"GCS_ENABLED":    cfg.GCSEnabled,
			},
		},
	}
	if cfg.APIKey == "" {
		report.Environment.Status = statusError
		report.Environment.Message = "GOOGLE_API_KEY not set"
	}

	if r.app.Generator == nil {
		report.Gemini = ComponentStatus{Status: statusError, Message: "GOOGLE_API_KEY not set"}
	} else if text, err := r.app.Generator.Ping(ctx); err != nil {
		report.Gemini = ComponentStatus{Status: statusError, Message: err.Error(), Details: map[string]any{"model": r.app.Generator.Model()}}
		logging.Error("Gemini への接続に失敗しました: " + err.Error())
	} else {
		report.Gemini = ComponentStatus{
			Status:  statusOK,
			Message: "Gemini connection successful",
			Details: map[string]any{"model": r.app.Generator.Model(), "response": text},
		}
		logging.Success("Gemini への接続を確認しました")
	}

	if r.app.Publisher == nil {
		report.Storage = ComponentStatus{Status: statusSkipped, Message: "STORAGE_BUCKET not set"}
	} else {
		report.Storage = ComponentStatus{
			Status:  statusOK,
			Message: "storage configured",
			Details: map[string]any{"bucket": cfg.Storage.Bucket, "prefix": cfg.Storage.Prefix},
		}
	}

	if r.app.Lister == nil {
		report.GCS = ComponentStatus{Status: statusSkipped, Message: "GCS_ENABLED is false"}
	} else {
		report.GCS = ComponentStatus{Status: statusOK, Message: "gs:// sources enabled"}
	}
	return report
}
