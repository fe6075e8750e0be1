package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/schedule"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// RemarkRuleStore 持久化的备注规则表（系统配置）
type RemarkRuleStore interface {
	LoadRemarkRules(ctx context.Context) (interface{}, bool, error)
	SaveRemarkRules(ctx context.Context, rules []models.RemarkRule, description string, operator *models.Operator) error
}

// RemarkCatalogue 当前规则快照
type RemarkCatalogue struct {
	Version int64               `json:"version"`
	Rules   []models.RemarkRule `json:"rules"`
}

// RemarkService 备注规则的查询、预览和替换
type RemarkService struct {
	engine *schedule.Engine
	store  RemarkRuleStore
}

// NewRemarkService store 可以为 nil，此时规则只在内存中替换
func NewRemarkService(engine *schedule.Engine, store RemarkRuleStore) *RemarkService {
	return &RemarkService{engine: engine, store: store}
}

func (s *RemarkService) Catalogue() RemarkCatalogue {
	snap := s.engine.Snapshot()
	return RemarkCatalogue{Version: snap.Version(), Rules: snap.Rules()}
}

// Preview 预览某个备注的排期，today 为零值时使用引擎时钟
func (s *RemarkService) Preview(remark string, today civil.Date) schedule.Suggestion {
	if today.IsZero() {
		return s.engine.Allocate(remark)
	}
	return s.engine.AllocateOn(remark, today)
}

// SyncFromStore 启动时从系统配置加载规则；没有配置时保留当前规则
func (s *RemarkService) SyncFromStore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	raw, found, err := s.store.LoadRemarkRules(ctx)
	if err != nil || !found {
		return false, err
	}
	rules, err := schedule.RulesFromValue(raw)
	if err != nil {
		return false, fmt.Errorf("系统配置中的备注规则无效: %w", err)
	}
	table, err := schedule.NewTable(rules)
	if err != nil {
		return false, fmt.Errorf("系统配置中的备注规则无效: %w", err)
	}
	version := s.engine.Replace(table)
	utils.LogInfo(map[string]interface{}{"version": version, "rules": table.Len()}, "已从系统配置加载备注规则")
	return true, nil
}

// UpdateRules 校验后保存并发布新规则；校验失败时旧规则不变
func (s *RemarkService) UpdateRules(ctx context.Context, req models.UpdateRemarkRulesRequest, operator *models.Operator) (*RemarkCatalogue, error) {
	if len(req.Rules) == 0 {
		return nil, &ValidationError{Field: "rules", Message: "规则不能为空"}
	}
	table, err := schedule.NewTable(req.Rules)
	if err != nil {
		return nil, &ValidationError{Field: "rules", Message: err.Error()}
	}
	if s.store != nil {
		if err := s.store.SaveRemarkRules(ctx, table.Rules(), req.Description, operator); err != nil {
			return nil, err
		}
	}
	s.engine.Replace(table)

	cat := s.Catalogue()
	utils.LogInfo(map[string]interface{}{"version": cat.Version, "rules": len(cat.Rules)}, "备注规则已更新")
	return &cat, nil
}
