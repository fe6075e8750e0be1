package utils

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// IsValidPhone 验证10位手机号是否有效
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// LoginUser 当前登录用户。Code 是写入跟进记录的作者代码
type LoginUser struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"name"`
	Code     string `json:"code"`
}

// AuthorCode 作者代码，未配置时退回用户名
func (u *LoginUser) AuthorCode() string {
	if u.Code != "" {
		return u.Code
	}
	return u.Username
}

func GetUser(c *gin.Context) (*LoginUser, error) {
	// 获取当前用户信息
	currentUser, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("GetUser 未授权访问")
	}

	// 处理不同类型的 claims
	var claims map[string]interface{}
	switch v := currentUser.(type) {
	case jwt.MapClaims:
		claims = map[string]interface{}(v)
	case map[string]interface{}:
		claims = v
	default:
		// 尝试通过 JSON 序列化/反序列化转换
		data, err := json.Marshal(currentUser)
		if err != nil {
			return nil, fmt.Errorf("序列化用户信息失败: %v", err)
		}
		if err := json.Unmarshal(data, &claims); err != nil {
			return nil, fmt.Errorf("反序列化用户信息失败: %v", err)
		}
	}

	// 获取用户信息字段
	id, ok := claims["id"].(string)
	if !ok {
		return nil, fmt.Errorf("无效的用户ID")
	}

	role, ok := claims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("无效的用户角色")
	}

	username, ok := claims["username"].(string)
	if !ok {
		// 检查是否有 "name" 字段作为备选
		if name, ok := claims["name"].(string); ok {
			username = name
		} else {
			return nil, fmt.Errorf("无效的用户名")
		}
	}
	code, _ := claims["code"].(string)

	return &LoginUser{
		ID:       id,
		Role:     role,
		Username: username,
		Code:     code,
	}, nil
}
