// Package logging は slog のデフォルトロガー設定と、CLI 向けの色付きコンソール出力を提供します。
//
// 構造化ログは slog、人が読む進捗や結果の表示はこのパッケージの Info/Success/Warn/Error を使います。
// どちらも標準エラー出力に書き出し、標準出力は JSON の結果だけに使います。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	infoPrefix    = color.New(color.FgBlue).SprintFunc()
	successPrefix = color.New(color.FgGreen).SprintFunc()
	warnPrefix    = color.New(color.FgYellow).SprintFunc()
	errorPrefix   = color.New(color.FgRed).SprintFunc()
)

// console はコンソール出力の書き込み先です。
var console io.Writer = os.Stderr

// SetOutput はコンソール出力の書き込み先を変更します。
func SetOutput(w io.Writer) {
	if w != nil {
		console = w
	}
}

// ParseLevel は "debug", "info", "warn", "error" を slog.Level に変換します。
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
}

// Setup は level と format ("text" / "json") に従ってロガーを生成し、slog のデフォルトに設定します。
func Setup(level, format string, w io.Writer) (*slog.Logger, error) {
	lv, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// Info は情報メッセージを青いプレフィックス付きで出力します。
func Info(msg string) {
	fmt.Fprintln(console, infoPrefix("[INFO]")+" "+msg)
}

// Success は成功メッセージを緑のプレフィックス付きで出力します。
func Success(msg string) {
	fmt.Fprintln(console, successPrefix("[SUCCESS]")+" "+msg)
}

// Warn は警告メッセージを黄色のプレフィックス付きで出力します。
func Warn(msg string) {
	fmt.Fprintln(console, warnPrefix("[WARN]")+" "+msg)
}

// Error はエラーメッセージを赤いプレフィックス付きで出力します。
func Error(msg string) {
	fmt.Fprintln(console, errorPrefix("[ERROR]")+" "+msg)
}
