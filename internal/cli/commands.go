package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/spf13/cobra"

	"github.com/shouni/gemini-character-kit/internal/config"
	"github.com/shouni/gemini-character-kit/internal/logging"
	"github.com/shouni/gemini-character-kit/pkg/domain"
)

// imageExtensions は gs:// プレフィックスを展開するときに対象とする拡張子です。
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// runner はコマンド間で共有する状態です。
type runner struct {
	build    Builder
	envFile  string
	logLevel string
	app      *App
}

// NewRootCommand は character-kit のルートコマンドを生成します。build が nil の場合は BuildApp を使います。
func NewRootCommand(build Builder) *cobra.Command {
	if build == nil {
		build = BuildApp
	}
	r := &runner{build: build}

	root := &cobra.Command{
		Use:   "character-kit",
		Short: "写真から絵本風キャラクターのイラストURLを生成します",
		Long: "Gemini で写真の被写体を描写し、その描写を埋め込んだ画像生成URLを組み立てます。\n" +
			"ローカルファイルは STORAGE_BUCKET に設定したバケットへ公開してから処理します。",
		PersistentPreRunE:  r.setup,
		PersistentPostRunE: r.teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}
	root.PersistentFlags().StringVar(&r.envFile, "env-file", "", ".env ファイルのパス (デフォルト: ./.env)")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)。LOG_LEVEL より優先")

	root.AddCommand(
		r.generateCommand(),
		r.batchCommand(),
		r.replaceCommand(),
		r.uploadCommand(),
		r.checkCommand(),
	)
	return root
}

func (r *runner) setup(cmd *cobra.Command, _ []string) error {
	var files []string
	if r.envFile != "" {
		files = append(files, r.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if r.logLevel != "" {
		cfg.LogLevel = r.logLevel
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()); err != nil {
		return err
	}

	app, err := r.build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	r.app = app
	return nil
}

func (r *runner) teardown(_ *cobra.Command, _ []string) error {
	if r.app == nil {
		return nil
	}
	return r.app.Close()
}

// generator は Gemini を呼び出すコマンドの前提条件を確認します。
func (r *runner) generator() (Generator, error) {
	if r.app.Generator != nil {
		return r.app.Generator, nil
	}
	if err := r.app.Config.Validate(); err != nil {
		return nil, err
	}
	return nil, errors.New("generator is not configured")
}

func (r *runner) generateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <url|file>",
		Short: "1枚の写真からキャラクターを生成します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := r.generator()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			src, err := r.resolveSource(ctx, args[0])
			if err != nil {
				return err
			}

			res, err := gen.GenerateSingle(ctx, src)
			if err != nil {
				return err
			}
			logging.Success("キャラクターを生成しました: " + src)
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func (r *runner) batchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <url|file|gs://bucket/prefix/>...",
		Short: "複数の写真から順番にキャラクターを生成します",
		Long:  "入力順に1枚ずつ処理し、失敗した画像があっても残りの処理を続けます。\n末尾が / の gs:// URI はプレフィックスとして展開します。",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := r.generator()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			items, err := r.expandSources(ctx, args)
			if err != nil {
				return err
			}

			var sources []string
			for _, it := range items {
				if it.err == nil {
					sources = append(sources, it.source)
				}
			}
			var generated []domain.GenerationResult
			if len(sources) > 0 {
				res, err := gen.GenerateBatch(ctx, sources)
				if err != nil {
					return err
				}
				generated = res.Characters
			}

			res := &domain.BatchResult{Success: true, Characters: mergeBatch(items, generated)}
			reportBatch(res)
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func (r *runner) replaceCommand() *cobra.Command {
	var subject, template string
	cmd := &cobra.Command{
		Use:   "replace --subject <url|file> --template <url|file>",
		Short: "テンプレート画像の主人公を写真の人物に差し替えます",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := r.generator()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			subjectURL, err := r.resolveSource(ctx, subject)
			if err != nil {
				return err
			}
			templateURL, err := r.resolveSource(ctx, template)
			if err != nil {
				return err
			}

			res, err := gen.ReplaceSubjectInTemplate(ctx, subjectURL, templateURL)
			if err != nil {
				return err
			}
			logging.Success("テンプレートへの差し替えプロンプトを生成しました")
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "被写体の写真 (URL またはローカルファイル)")
	cmd.Flags().StringVar(&template, "template", "", "テンプレート画像 (URL またはローカルファイル)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func (r *runner) uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "画像をストレージにアップロードして公開URLを表示します",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.app.Publisher == nil {
				return errors.New("STORAGE_BUCKET is required for upload")
			}
			ctx := cmd.Context()
			var objects []any
			for _, p := range args {
				obj, err := r.app.Publisher.PublishFile(ctx, p)
				if err != nil {
					return err
				}
				logging.Success(fmt.Sprintf("%s → %s", p, obj.URL))
				objects = append(objects, obj)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"success": true, "files": objects})
		},
	}
}

func (r *runner) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Gemini とストレージの接続設定を確認します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := r.checkConnections(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Gemini.Status != statusOK {
				return errors.New("gemini connection check failed")
			}
			return nil
		},
	}
}

// resolveSource は URL をそのまま返し、ローカルファイルはアップロードして公開URLを返します。
func (r *runner) resolveSource(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", domain.ErrEmptyImageURL
	}
	if isRemote(ref) {
		return ref, nil
	}
	if r.app.Publisher == nil {
		return "", errStorageRequired(ref)
	}
	return r.publish(ctx, ref)
}

func (r *runner) publish(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("not a URL or readable file: %s: %w", path, err)
	}
	obj, err := r.app.Publisher.PublishFile(ctx, path)
	if err != nil {
		return "", err
	}
	logging.Info(fmt.Sprintf("%s をアップロードしました: %s", path, obj.URL))
	return obj.URL, nil
}

func errStorageRequired(path string) error {
	return fmt.Errorf("local file %s requires STORAGE_BUCKET to be configured", path)
}

// batchItem は batch の入力1件です。err があれば生成せずに失敗エントリとして記録します。
type batchItem struct {
	source string
	err    error
}

// expandSources は引数を処理順の入力一覧に変換します。
// ローカルファイルのアップロード失敗はその1件の失敗として扱い、残りの処理は続けます。
func (r *runner) expandSources(ctx context.Context, args []string) ([]batchItem, error) {
	var items []batchItem
	for _, arg := range args {
		switch {
		case arg == "":
			return nil, domain.ErrEmptyImageURL
		case remoteio.IsGCSURI(arg) && strings.HasSuffix(arg, "/"):
			if r.app.Lister == nil {
				return nil, fmt.Errorf("GCS_ENABLED is required to expand %s", arg)
			}
			err := r.app.Lister.List(ctx, arg, func(uri string) error {
				if imageExtensions[strings.ToLower(path.Ext(uri))] {
					items = append(items, batchItem{source: uri})
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		case isRemote(arg):
			items = append(items, batchItem{source: arg})
		case r.app.Publisher == nil:
			return nil, errStorageRequired(arg)
		default:
			src, err := r.publish(ctx, arg)
			if err != nil {
				logging.Warn(fmt.Sprintf("%s をアップロードできませんでした: %v", arg, err))
				items = append(items, batchItem{source: arg, err: err})
				continue
			}
			items = append(items, batchItem{source: src})
		}
	}
	if len(items) == 0 {
		return nil, domain.ErrNoImages
	}
	return items, nil
}

// mergeBatch は生成結果とアップロード失敗を入力順に並べ直します。
func mergeBatch(items []batchItem, generated []domain.GenerationResult) []domain.GenerationResult {
	out := make([]domain.GenerationResult, 0, len(items))
	next := 0
	for _, it := range items {
		if it.err != nil {
			out = append(out, domain.NewFailure(it.source, it.err.Error()))
			continue
		}
		out = append(out, generated[next])
		next++
	}
	return out
}

func isRemote(ref string) bool {
	for _, p := range []string{"http://", "https://", "gs://"} {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}
