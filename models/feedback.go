package models

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// CallStatus 通话状态
type CallStatus string

const (
	CallStatusAnswered    CallStatus = "answered"
	CallStatusNotAnswered CallStatus = "not_answered"
	CallStatusNone        CallStatus = "none"
)

// ParseCallStatus 宽松解析通话状态，无法识别时返回 none
func ParseCallStatus(s string) CallStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "answered", "yes", "connected":
		return CallStatusAnswered
	case "not_answered", "not answered", "notanswered", "na", "no", "not connected":
		return CallStatusNotAnswered
	default:
		return CallStatusNone
	}
}

// FeedbackEntry 一次沟通结果，追加后不可修改
type FeedbackEntry struct {
	FeedbackText string     `json:"feedbackText"`
	Remark       string     `json:"remark"`
	NFD          civil.Date `json:"nfd"`
	EJD          civil.Date `json:"ejd"`
	IFD          civil.Date `json:"ifd"`
	CallStatus   CallStatus `json:"callStatus"`
	AuthorCode   string     `json:"authorCode"`
	Timestamp    time.Time  `json:"timestamp"`
}

// TaggedEntry 带来源职位信息的跟进记录
type TaggedEntry struct {
	FeedbackEntry
	JobAssignmentID string `json:"jobAssignmentId"`
	ClientName      string `json:"clientName"`
	Designation     string `json:"designation"`
	Seq             int    `json:"seq"`
}

// HistoryOrder 跟进记录排序方式
type HistoryOrder string

const (
	OrderChronological HistoryOrder = "asc"
	OrderRecentFirst   HistoryOrder = "desc"
)

// ParseHistoryOrder 默认按时间正序
func ParseHistoryOrder(s string) HistoryOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "recent", "latest":
		return OrderRecentFirst
	default:
		return OrderChronological
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// RecordFeedbackRequest 记录沟通结果请求，日期格式 yyyy-mm-dd，留空表示不填
type RecordFeedbackRequest struct {
	Remark       string `json:"remark"`
	CallStatus   string `json:"callStatus"`
	FeedbackText string `json:"feedbackText"`
	NFD          string `json:"nfd"`
	EJD          string `json:"ejd"`
	IFD          string `json:"ifd"`
}

// PreviewRemarkRequest 预览备注排期
type PreviewRemarkRequest struct {
	Remark string `json:"remark" binding:"required"`
	Today  string `json:"today"`
}
