package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BerniceZTT/crm_engagement/config"
	"github.com/BerniceZTT/crm_engagement/controllers"
	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/routes"
	"github.com/BerniceZTT/crm_engagement/schedule"
	"github.com/BerniceZTT/crm_engagement/service"
	"github.com/BerniceZTT/crm_engagement/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "listen port")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func serve(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}
	defer b.close()

	store := repository.NewCachedLedgerStore(b.ledger, cfg.Ledger.ReadCacheTTL)

	engine := schedule.NewEngine(nil)
	remarks := service.NewRemarkService(engine, b.rules)
	if err := loadRemarkRules(ctx, cfg, engine, remarks); err != nil {
		return err
	}

	engagement := service.NewEngagementService(store, engine,
		service.WithPolicy(masking.Policy{RecencyDays: cfg.Masking.RecencyDays}),
	)

	digest := service.NewFollowUpDigest(store)
	if cfg.Digest.Enabled {
		hour, minute, _ := cfg.Digest.Clock()
		service.ScheduleDailyTaskAt(ctx, hour, minute, 0, digest.Run)
		utils.Logger.Info().Str("at", cfg.Digest.At).Msg("已启用每日待跟进提醒")
	}

	router := routes.NewRouter(routes.Handlers{
		Engagement:    controllers.NewEngagementController(engagement),
		Remarks:       controllers.NewRemarkController(remarks),
		FollowUps:     controllers.NewFollowUpController(digest),
		Status:        b.status,
		OperationLogs: b.opLogs,
		AllowOrigins:  cfg.AllowOrigins,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Info().Msgf("服务器启动，监听端口: %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
	case <-ctx.Done():
	}
	utils.Logger.Info().Msg("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭异常: %w", err)
	}

	utils.Logger.Info().Msg("服务器已优雅关闭")
	return nil
}

// loadRemarkRules 规则来源优先级：规则文件 > 系统配置 > 内置规则
func loadRemarkRules(ctx context.Context, cfg *config.Config, engine *schedule.Engine, remarks *service.RemarkService) error {
	if cfg.Remarks.File != "" {
		src, err := schedule.LoadFile(cfg.Remarks.File, engine)
		if err != nil {
			return err
		}
		if cfg.Remarks.Watch {
			src.Watch()
		}
		utils.Logger.Info().Str("file", cfg.Remarks.File).Int64("version", engine.Snapshot().Version()).Msg("已从文件加载备注规则")
		return nil
	}

	found, err := remarks.SyncFromStore(ctx)
	if err != nil {
		// 系统配置不可用时继续使用内置规则
		utils.LogWarn(map[string]interface{}{"error": err.Error()}, "加载系统配置中的备注规则失败")
		return nil
	}
	if !found {
		utils.Logger.Info().Int("rules", engine.Snapshot().Len()).Msg("使用内置备注规则")
	}
	return nil
}
