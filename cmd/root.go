package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wolfitem/nostr-digest/internal/application/service"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
)

var (
	cfgFile  string
	opmlFile string
	postFlag bool
)

// rootCmd 直接执行摘要流程；不带 --post 时只预览
var rootCmd = &cobra.Command{
	Use:   "nostr-digest",
	Short: "将RSS/Atom订阅源汇总为摘要并发布到Nostr中继",
	Long: `nostr-digest 按分类获取配置的RSS/Atom订阅源，过滤最近几天的条目，
去重并截断后生成一条父笔记和每个分类一条回复。

默认只在控制台预览；加上 --post 才会签名并发布到配置的中继。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := buildParams()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		appService := service.NewDefaultDigestService(params, out)
		if err := appService.Run(cmd.Context()); err != nil {
			logger.Error("摘要流程失败", "error", err)
			return err
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := setupSignalHandler()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认为 ./config.yaml)")
	rootCmd.Flags().BoolVar(&postFlag, "post", false, "签名并发布到中继（默认只预览）")
	rootCmd.Flags().StringVar(&opmlFile, "opml", "", "从OPML文件读取分类与订阅源")
}

// initConfig 依次读取 .env、配置文件和环境变量
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	setDefaults()
	bindEnv()

	configErr := viper.ReadInConfig()
	initLogger()

	var notFound viper.ConfigFileNotFoundError
	switch {
	case configErr == nil:
		logger.Info("使用配置文件", "file", viper.ConfigFileUsed())
	case errors.As(configErr, &notFound):
		logger.Debug("未找到配置文件，使用默认配置")
	default:
		logger.Warn("无法读取配置文件", "error", configErr)
	}
}

// initLogger 初始化日志系统
func initLogger() {
	logConfig := logger.Config{
		Level:      viper.GetString("logger.level"),
		Console:    viper.GetBool("logger.console"),
		FilePath:   viper.GetString("logger.file_path"),
		MaxSize:    viper.GetInt("logger.max_size"),
		MaxBackups: viper.GetInt("logger.max_backups"),
		MaxAge:     viper.GetInt("logger.max_age"),
		Compress:   viper.GetBool("logger.compress"),
	}

	if err := logger.Init(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志系统失败: %v\n", err)
	}
}

// setupSignalHandler 在 SIGINT/SIGTERM 时取消上下文
func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
