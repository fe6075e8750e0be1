package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_engagement/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// 集合名
	JobAssignmentsCollection   = "jobAssignments"
	ApiOperationLogsCollection = "apiOperationLogs"
	SystemConfigsCollection    = "systemConfigs"
)

var managedCollections = []string{
	JobAssignmentsCollection,
	ApiOperationLogsCollection,
	SystemConfigsCollection,
}

// ConnectMongoDB 建立MongoDB连接
func ConnectMongoDB(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	// 设置连接超时
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}

	// 检查连接
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping MongoDB失败: %w", err)
	}

	db := client.Database(dbName)
	utils.Logger.Info().Str("database", dbName).Msg("已连接到MongoDB")
	return client, db, nil
}

// CloseMongoDB 关闭MongoDB连接
func CloseMongoDB(ctx context.Context, client *mongo.Client) {
	if client == nil {
		return
	}
	if err := client.Disconnect(ctx); err != nil {
		utils.Logger.Error().Err(err).Msg("断开MongoDB连接失败")
		return
	}
	utils.Logger.Info().Msg("已断开MongoDB连接")
}

// ExecuteDbOperation 执行数据库操作，对网络类错误做有限次重试
func ExecuteDbOperation[T any](ctx context.Context, operation func(ctx context.Context) (T, error), retries int) (T, error) {
	if retries <= 0 {
		retries = 3
	}

	var zero T
	var lastErr error
	for i := 0; i < retries; i++ {
		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err
		// 如果是不可重试的错误，立即返回
		if !isRetryableError(err) {
			break
		}
		utils.Logger.Warn().Err(err).Msgf("数据库操作失败，重试 (%d/%d)", i+1, retries)

		// 延迟后重试
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}

	return zero, lastErr
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	// MongoDB可重试错误代码
	retryableCodes := map[int32]bool{
		6:     true, // HostUnreachable
		7:     true, // HostNotFound
		89:    true, // NetworkTimeout
		91:    true, // ShutdownInProgress
		189:   true, // PrimarySteppedDown
		10107: true, // NotMaster
		13436: true, // NotMasterNoSlaveOk
		11600: true, // InterruptedAtShutdown
		11602: true, // InterruptedDueToReplStateChange
		10058: true, // ConnectionReset
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return retryableCodes[cmdErr.Code]
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	// 检查常见网络错误
	return isNetworkError(err)
}

// isNetworkError 检查是否是网络错误
func isNetworkError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"no reachable servers",
		"server selection error",
	}

	for _, ne := range networkErrors {
		if strings.Contains(errMsg, ne) {
			return true
		}
	}
	return false
}

// InitializeCollections 初始化数据库集合和索引
func InitializeCollections(ctx context.Context, db *mongo.Database) error {
	for _, collName := range managedCollections {
		// 检查集合是否存在
		collExists, err := CollectionExists(ctx, db, collName)
		if err != nil {
			return fmt.Errorf("检查集合失败: %w", err)
		}

		// 如果不存在则创建
		if !collExists {
			if err := db.CreateCollection(ctx, collName); err != nil {
				return fmt.Errorf("创建集合失败: %w", err)
			}
			utils.Logger.Info().Str("collection", collName).Msg("创建集合成功")
		} else {
			utils.Logger.Debug().Str("collection", collName).Msg("集合已存在")
		}
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "candidateId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "phoneKey", Value: 1}}},
		{Keys: bson.D{{Key: "nfd", Value: 1}}},
	}
	if _, err := db.Collection(JobAssignmentsCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}

	_, err := db.Collection(SystemConfigsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "configType", Value: 1}, {Key: "configKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}
	return nil
}

// CollectionExists 检查集合是否存在
func CollectionExists(ctx context.Context, db *mongo.Database, collName string) (bool, error) {
	collections, err := db.ListCollectionNames(ctx, bson.M{"name": collName})
	if err != nil {
		return false, err
	}

	for _, name := range collections {
		if name == collName {
			return true, nil
		}
	}
	return false, nil
}

// GetDatabaseStatus 获取数据库状态
func GetDatabaseStatus(ctx context.Context, db *mongo.Database) map[string]interface{} {
	result := make(map[string]interface{})

	for _, collName := range managedCollections {
		count, err := db.Collection(collName).CountDocuments(ctx, bson.M{})
		if err != nil {
			utils.Logger.Error().Err(err).Str("collection", collName).Msg("获取集合计数失败")
			result[collName] = map[string]interface{}{
				"count": 0,
				"error": err.Error(),
			}
			continue
		}
		result[collName] = map[string]interface{}{
			"count": count,
		}
	}
	return result
}
