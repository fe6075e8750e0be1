package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_engagement/config"
	"github.com/BerniceZTT/crm_engagement/controllers"
	"github.com/BerniceZTT/crm_engagement/middleware"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/service"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// backend 按存储驱动打开的一组存储端口
type backend struct {
	ledger repository.LedgerStore
	rules  service.RemarkRuleStore
	opLogs middleware.OperationLogSink
	status controllers.StatusFunc
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	opts := []repository.Option{repository.WithMaxAttempts(cfg.Ledger.MaxAppendAttempts)}

	switch cfg.Storage.Driver {
	case config.DriverMongo:
		client, db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		if err := repository.InitializeCollections(ctx, db); err != nil {
			utils.Logger.Error().Err(err).Msg("初始化数据库集合失败")
		}
		return &backend{
			ledger: repository.NewMongoLedgerStore(db, opts...),
			rules:  repository.NewMongoRemarkRuleStore(db),
			opLogs: repository.NewMongoOperationLogSink(db),
			status: func(ctx context.Context) (map[string]interface{}, error) {
				return repository.GetDatabaseStatus(ctx, db), nil
			},
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				repository.CloseMongoDB(closeCtx, client)
			},
		}, nil

	case config.DriverSQLite:
		store, err := repository.OpenSQLite(ctx, cfg.SQLite.Path, opts...)
		if err != nil {
			return nil, err
		}
		return &backend{
			ledger: store,
			rules:  store,
			opLogs: store,
			status: store.Status,
			close: func() {
				if err := store.Close(); err != nil {
					utils.Logger.Error().Err(err).Msg("关闭SQLite失败")
				}
			},
		}, nil

	case config.DriverMemory:
		utils.Logger.Warn().Msg("使用内存存储，进程退出后数据丢失")
		store := repository.NewMemoryStore(opts...)
		return &backend{
			ledger: store,
			rules:  store,
			opLogs: store,
			status: store.Status,
			close:  func() {},
		}, nil
	}
	return nil, fmt.Errorf("不支持的存储驱动: %q", cfg.Storage.Driver)
}
