package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BerniceZTT/crm_engagement/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRemarkRuleStore 备注规则表保存在 systemConfigs 集合
type MongoRemarkRuleStore struct {
	coll *mongo.Collection
}

func NewMongoRemarkRuleStore(db *mongo.Database) *MongoRemarkRuleStore {
	return &MongoRemarkRuleStore{coll: db.Collection(SystemConfigsCollection)}
}

// LoadRemarkRules 返回规则的原始值；没有启用的配置时 found 为 false
func (s *MongoRemarkRuleStore) LoadRemarkRules(ctx context.Context) (interface{}, bool, error) {
	query := bson.M{
		"configType": models.ConfigTypeRemarkRules,
		"configKey":  models.RemarkRulesConfigKey,
		"isEnabled":  true,
	}

	var cfg models.SystemConfig
	_, err := ExecuteDbOperation(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.coll.FindOne(ctx, query).Decode(&cfg)
	}, 3)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("查询备注规则配置失败: %w", err)
	}
	return normalizeBSON(cfg.ConfigValue), true, nil
}

// SaveRemarkRules 覆盖保存规则表
func (s *MongoRemarkRuleStore) SaveRemarkRules(ctx context.Context, rules []models.RemarkRule, description string, operator *models.Operator) error {
	value := make(bson.A, 0, len(rules))
	for _, r := range rules {
		value = append(value, bson.M{"key": r.Key, "offset": r.OffsetDays, "template": r.Template})
	}

	set := bson.M{
		"configValue": value,
		"description": description,
		"isEnabled":   true,
		"updatedAt":   time.Now(),
	}
	if operator != nil {
		set["updaterId"] = operator.ID
		set["updaterName"] = operator.Name
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"configType": models.ConfigTypeRemarkRules, "configKey": models.RemarkRulesConfigKey},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("保存备注规则配置失败: %w", err)
	}
	return nil
}

// normalizeBSON 把 bson.D / bson.A 转成普通 map / slice，便于 mapstructure 解码
func normalizeBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = normalizeBSON(val)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeBSON(val)
		}
		return out
	default:
		return v
	}
}

// MongoOperationLogSink 操作日志写入 apiOperationLogs 集合
type MongoOperationLogSink struct {
	coll *mongo.Collection
}

func NewMongoOperationLogSink(db *mongo.Database) *MongoOperationLogSink {
	return &MongoOperationLogSink{coll: db.Collection(ApiOperationLogsCollection)}
}

// SaveOperationLog 保存操作日志到数据库
func (s *MongoOperationLogSink) SaveOperationLog(ctx context.Context, log *models.OperationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := s.coll.InsertOne(ctx, log)
	return err
}
