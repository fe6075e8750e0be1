package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/utils"

	"github.com/gin-gonic/gin"
)

// OperationLogSink 操作日志落库
type OperationLogSink interface {
	SaveOperationLog(ctx context.Context, log *models.OperationLog) error
}

// 需要记录的HTTP方法
var loggedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// 不需要记录的路径
var excludedPaths = map[string]bool{
	"/api/health":          true,
	"/api/db-status":       true,
	"/api/remarks/preview": true,
}

// 值按手机号打码的字段
var phoneFields = map[string]bool{
	"phone":          true,
	"candidatephone": true,
	"mobile":         true,
}

// OperationLoggerMiddleware 记录写操作，sink 为 nil 时只写日志不落库
func OperationLoggerMiddleware(sink OperationLogSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldLogOperation(c) {
			c.Next()
			return
		}

		startTime := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		blw := &bodyLogWriter{
			body:           bytes.NewBufferString(""),
			ResponseWriter: c.Writer,
		}
		c.Writer = blw

		var requestBody interface{}
		if c.Request.Body != nil {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				utils.Logger.Error().Err(err).Msg("读取请求体失败")
			} else {
				c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
				requestBody = decodeBody(raw, c.Request.Header.Get("Content-Type"))
			}
		}

		c.Next()

		responseTime := time.Since(startTime).Milliseconds()
		responseData := decodeBody(blw.body.Bytes(), c.Writer.Header().Get("Content-Type"))

		var errorMessage string
		if len(c.Errors) > 0 {
			errorMessage = c.Errors.String()
		}

		operatorID, operatorName, operatorType := extractUserInfo(c)
		operationLog := models.OperationLog{
			RequestID:     GetRequestID(c),
			Method:        method,
			Path:          path,
			OperatorID:    operatorID,
			OperatorName:  operatorName,
			OperatorType:  operatorType,
			RequestBody:   sanitizeData(requestBody),
			RequestHeader: sanitizeHeaders(c.Request.Header),
			ResponseData:  sanitizeData(responseData),
			StatusCode:    c.Writer.Status(),
			Success:       c.Writer.Status() < http.StatusBadRequest,
			ErrorMessage:  errorMessage,
			OperationTime: startTime,
			ResponseTime:  responseTime,
			IPAddress:     getClientIP(c),
			UserAgent:     c.Request.UserAgent(),
		}

		if sink != nil {
			// 请求可能已被取消，日志仍需落库
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
			if err := sink.SaveOperationLog(ctx, &operationLog); err != nil {
				utils.Logger.Error().Err(err).Msg("保存操作日志失败")
				minimalLog := operationLog
				minimalLog.ID = ""
				minimalLog.RequestBody = nil
				minimalLog.RequestHeader = nil
				minimalLog.ResponseData = nil
				minimalLog.ErrorMessage = fmt.Sprintf("保存详细日志失败: %v", err)

				if saveErr := sink.SaveOperationLog(ctx, &minimalLog); saveErr != nil {
					utils.Logger.Error().Err(saveErr).Msg("保存最小日志失败")
				}
			}
			cancel()
		}

		utils.Logger.Info().
			Str("method", method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Str("operator", operatorName).
			Str("requestId", operationLog.RequestID).
			Int64("responseTime", responseTime).
			Msg("操作日志记录完成")
	}
}

// shouldLogOperation 检查是否需要记录此操作
func shouldLogOperation(c *gin.Context) bool {
	if excludedPaths[c.Request.URL.Path] {
		return false
	}
	return loggedMethods[c.Request.Method]
}

func decodeBody(raw []byte, contentType string) interface{} {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		utils.Logger.Warn().Msg("解析JSON内容失败")
	}
	return maskPhonesInText(string(raw))
}

// extractUserInfo 从上下文中提取用户信息
func extractUserInfo(c *gin.Context) (string, string, string) {
	user, err := utils.GetUser(c)
	if err != nil {
		return "anonymous", "匿名用户", "UNKNOWN"
	}
	return user.ID, user.Username, user.Role
}

// sanitizeData 清理敏感信息：凭据替换为星号，手机号打码
func sanitizeData(data interface{}) interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		sanitized := make(map[string]interface{}, len(v))
		for k, val := range v {
			key := strings.ToLower(k)
			switch {
			case key == "password" || key == "token" || key == "authorization" || key == "secret" || key == "key":
				sanitized[k] = "******"
			case phoneFields[key]:
				sanitized[k] = maskPhoneValue(val)
			default:
				sanitized[k] = sanitizeData(val)
			}
		}
		return sanitized
	case []interface{}:
		sanitized := make([]interface{}, len(v))
		for i, val := range v {
			sanitized[i] = sanitizeData(val)
		}
		return sanitized
	case string:
		return maskPhonesInText(v)
	default:
		return data
	}
}

func maskPhoneValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if norm := masking.NormalizePhone(s); len(norm) == 10 {
		return masking.MaskPhone(norm)
	}
	return maskPhonesInText(s)
}

// sanitizeHeaders 清理请求头中的敏感信息
func sanitizeHeaders(headers http.Header) map[string]interface{} {
	sanitized := make(map[string]interface{})
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "authorization":
			if len(v) > 0 {
				sanitized[k] = getShortAuthHeader(v[0])
			}
		case "cookie", "x-api-key":
			sanitized[k] = "******"
		default:
			sanitized[k] = v
		}
	}
	return sanitized
}

// getClientIP 获取客户端IP地址
func getClientIP(c *gin.Context) string {
	if ip := c.Request.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := c.Request.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}
