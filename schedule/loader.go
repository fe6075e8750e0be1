package schedule

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// RulesFromValue 把 YAML 文件或系统配置中的原始值解码为规则列表
func RulesFromValue(raw interface{}) ([]models.RemarkRule, error) {
	if raw == nil {
		return nil, fmt.Errorf("remark rules are empty")
	}

	var rules []models.RemarkRule
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rules,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("build rule decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode remark rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("remark rules are empty")
	}
	return rules, nil
}

// FileSource 从 YAML 文件加载规则并支持热更新
type FileSource struct {
	v      *viper.Viper
	engine *Engine
	path   string
}

// LoadFile 读取规则文件并发布到 engine
func LoadFile(path string, engine *Engine) (*FileSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read remark rules %s: %w", path, err)
	}

	src := &FileSource{v: v, engine: engine, path: path}
	if _, err := src.reload(); err != nil {
		return nil, err
	}
	return src, nil
}

// Watch 文件变化时重新加载；新内容非法时保留旧快照
func (s *FileSource) Watch() {
	s.v.OnConfigChange(func(ev fsnotify.Event) {
		version, err := s.reload()
		if err != nil {
			utils.LogWarn(map[string]interface{}{
				"file":  ev.Name,
				"error": err.Error(),
			}, "备注规则热更新失败，继续使用旧规则")
			return
		}
		utils.LogInfo(map[string]interface{}{
			"file":    ev.Name,
			"version": version,
		}, "备注规则已热更新")
	})
	s.v.WatchConfig()
}

func (s *FileSource) reload() (int64, error) {
	rules, err := RulesFromValue(s.v.Get("rules"))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.path, err)
	}
	table, err := NewTable(rules)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", s.path, err)
	}
	return s.engine.Replace(table), nil
}
