package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/course_report/app/course_report/pkg/config"
	"github.com/iWorld-y/course_report/app/course_report/pkg/engine"
	"github.com/iWorld-y/course_report/app/course_report/pkg/logger"
	"github.com/iWorld-y/course_report/app/course_report/pkg/storage"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "course_report",
		Short:        "生成课程成绩与缺勤的 PDF 报告",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本号",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		courses    []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "为配置中的课程生成报告",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, courses)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "配置文件路径")
	cmd.Flags().StringSliceVar(&courses, "course", nil, "只处理指定课程，可重复")
	return cmd
}

func run(ctx context.Context, configPath string, courses []string) error {
	// 1. 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("无法加载配置文件: %w", err)
	}

	// 2. 初始化日志
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return fmt.Errorf("无法初始化日志: %w", err)
	}
	logger.Log.Info("启动课程报告生成...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库连接，失败时只生成文件
	var store engine.Archiver
	if cfg.DB.Host != "" {
		s, err := storage.NewStorage(cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 将仅生成 PDF 文件。", err)
		} else {
			store = s
			defer s.Close()
			logger.Log.Info("已成功连接到数据库")
		}
	} else {
		logger.Log.Info("未配置数据库信息，跳过数据库连接")
	}

	// 4. 运行
	e, err := engine.NewEngine(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("引擎初始化失败: %w", err)
	}
	results, err := e.Run(ctx, engine.RunOptions{Courses: courses})
	if err != nil {
		logger.Log.Errorf("报告生成失败: %v", err)
		return err
	}

	for _, r := range results {
		logger.Log.Infof("✅ 课程 [%s] 报告生成完毕: %s", r.Course, r.PDF)
	}
	return nil
}
