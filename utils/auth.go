package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/BerniceZTT/crm_engagement/models"

	"github.com/dgrijalva/jwt-go"
)

var (
	jwtSecret   = []byte("your-secret-key")
	jwtSecretMu sync.RWMutex
)

// SetJWTSecret 设置签名密钥，启动时由配置注入
func SetJWTSecret(key string) {
	if key == "" {
		return
	}
	jwtSecretMu.Lock()
	jwtSecret = []byte(key)
	jwtSecretMu.Unlock()
}

func secret() []byte {
	jwtSecretMu.RLock()
	defer jwtSecretMu.RUnlock()
	return jwtSecret
}

// GenerateToken 生成JWT令牌
func GenerateToken(user LoginUser, ttl time.Duration) (string, error) {
	if user.ID == "" || user.Role == "" {
		return "", fmt.Errorf("用户信息不完整")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour * 30 // 30天有效期
	}

	// 创建JWT Claims
	claims := jwt.MapClaims{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
		"code":     user.Code,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}

	// 创建token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// 签名token
	tokenString, err := token.SignedString(secret())
	if err != nil {
		Logger.Error().Err(err).Msg("生成token失败")
		return "", err
	}
	return tokenString, nil
}

// ParseToken 解析和验证JWT令牌
func ParseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret(), nil
	})

	if err != nil {
		return nil, err
	}

	// 验证token并提取claims
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("无效的token")
}

// HasPermission 检查用户是否有权限
func HasPermission(role models.UserRole, resource string, action string) bool {
	// 超级管理员拥有所有权限
	if role == models.UserRoleSUPER_ADMIN {
		return true
	}

	// 定义各角色权限
	permissions := map[models.UserRole]map[string][]string{
		models.UserRoleTEAM_LEAD: {
			"jobAssignments": {"read", "create"},
			"feedback":       {"read", "create"},
			"remarks":        {"read", "update"},
			"followUps":      {"read"},
		},
		models.UserRoleRECRUITER: {
			"jobAssignments": {"read", "create"},
			"feedback":       {"read", "create"},
			"remarks":        {"read"},
			"followUps":      {"read"},
		},
		models.UserRoleVIEWER: {
			"jobAssignments": {"read"},
			"feedback":       {"read"},
			"remarks":        {"read"},
		},
	}

	// 检查特定角色的权限
	if resourceActions, exists := permissions[role]; exists {
		if actions, hasResource := resourceActions[resource]; hasResource {
			for _, a := range actions {
				if a == action {
					return true
				}
			}
		}
	}

	return false
}
