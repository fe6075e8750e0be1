package middleware

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "requestId"

// 文本中的 10 位手机号
var phoneInText = regexp.MustCompile(`\b[6-9]\d{9}\b`)

// bodyLogWriter 用于记录响应内容
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现 ResponseWriter 接口
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestID 沿用客户端传入的请求ID，没有时生成一个
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID 当前请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger 日志中间件，请求体和响应体中的手机号打码后再记录
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		headers := make(map[string]string)
		for k, v := range sanitizeHeaders(c.Request.Header) {
			if vals, ok := v.([]string); ok && len(vals) > 0 {
				headers[k] = vals[0]
			} else if s, ok := v.(string); ok {
				headers[k] = s
			}
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 恢复请求体以便后续处理
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBufferString(""),
		}
		c.Writer = blw

		utils.LogApiRequest(
			method,
			path,
			maskQuery(c.Request.URL.Query()),
			maskPhonesInText(string(requestBody)),
			headers,
		)

		c.Next()

		utils.LogApiResponse(
			method,
			path,
			c.Writer.Status(),
			time.Since(start),
			maskPhonesInText(blw.body.String()),
		)
	}
}

// Recovery 恢复中间件
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		utils.Logger.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Str("requestId", GetRequestID(c)).
			Msg("服务崩溃")

		c.AbortWithStatusJSON(500, gin.H{
			"success": false,
			"error":   "服务器内部错误",
		})
	})
}

func maskPhonesInText(s string) string {
	return phoneInText.ReplaceAllStringFunc(s, masking.MaskPhone)
}

// maskQuery 查询参数打码，phone 等字段按号码归一化后打码
func maskQuery(query url.Values) map[string][]string {
	masked := make(map[string][]string, len(query))
	for k, vals := range query {
		out := make([]string, len(vals))
		for i, v := range vals {
			if phoneFields[strings.ToLower(k)] {
				out[i], _ = maskPhoneValue(v).(string)
			} else {
				out[i] = maskPhonesInText(v)
			}
		}
		masked[k] = out
	}
	return masked
}
