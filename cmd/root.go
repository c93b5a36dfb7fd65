package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"

	"github.com/spf13/cobra"
)

const appName = "storyboard-kit"

// opts は全サブコマンドで共有する実行時パラメータなのだ。
var opts config.GenerateOptions

var verbose bool

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "分镜脚本からストーリーボード画像を一括生成するのだ。",
	Long:          "火山引擎と通義万相を使い分けて、分镜の全ショットの画像を予算内で生成するツールなのだ。",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- 入力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.ProjectDir, "project-dir", "d", config.DefaultProjectDir, "プロジェクトディレクトリなのだ。参照と出力はこの配下に置くのだよ。")
	rootCmd.PersistentFlags().StringVarP(&opts.StoryboardFile, "storyboard", "s", config.DefaultStoryboardFile, "分镜 JSON のパス（プロジェクトディレクトリ基準）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.RosterFile, "roster", "r", config.DefaultRosterFile, "キャラクターとシーンのロスター JSON のパスなのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.BatchConfigFile, "config", "c", "", "バッチ設定 YAML のパスなのだ。")

	// --- 生成挙動の上書き ---
	rootCmd.PersistentFlags().StringVarP(&opts.Provider, "provider", "p", "", "volcano / aliyun / hybrid なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.Quality, "quality", "q", "", "standard / high / ultra なのだ。")
	rootCmd.PersistentFlags().BoolVar(&opts.Download, "download", false, "生成画像をローカルに保存するのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Format, "format", "", "保存形式（png / jpg）なのだ。")

	// --- 実行制御 ---
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "HTTP リクエストのタイムアウトなのだ。")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出すのだ。")
}

// preRunAppE は、生成系コマンドの実行前にアクセスキーの有無を確かめるのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	cfg := config.LoadConfig()
	if !cfg.HasVolcano() && !cfg.HasAliyun() {
		return builder.ErrNoProvider
	}
	return nil
}

// loadConfig は環境変数の設定に CLI のオプションを載せるのだ。
func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.Options = opts
	return cfg
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(generateCmd, designCmd, providersCmd, referencesCmd, cleanupCmd)

	// Ctrl+C で実行中のバッチを打ち切るのだ
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("コマンドの実行に失敗したのだ", "error", err)
		os.Exit(1)
	}
}
