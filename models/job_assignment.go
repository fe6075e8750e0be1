package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// AssignmentStatus 候选人在某个职位上的状态
type AssignmentStatus string

const (
	AssignmentStatusJoined      AssignmentStatus = "Joined"
	AssignmentStatusSelected    AssignmentStatus = "Selected"
	AssignmentStatusInProcess   AssignmentStatus = "In Process"
	AssignmentStatusRejected    AssignmentStatus = "Rejected"
	AssignmentStatusOfferDenied AssignmentStatus = "Offer Denied"
)

// IsPlaced 是否已入职或已录用
func (s AssignmentStatus) IsPlaced() bool {
	return equalFold(string(s), string(AssignmentStatusJoined)) ||
		equalFold(string(s), string(AssignmentStatusSelected))
}

// JobAssignment 候选人-客户-职位 的一次对接
//
// Feedback 字段保存完整的编码后跟进记录，是唯一的事实来源；
// Latest* / NFD / EJD / IFD / CallStatus 只是账本末尾的冗余镜像，每次追加时刷新。
type JobAssignment struct {
	ID             string           `json:"_id" bson:"-"`
	CandidateID    string           `json:"candidateId" bson:"candidateId"`
	CandidateName  string           `json:"candidateName" bson:"candidateName"`
	CandidatePhone string           `json:"candidatePhone" bson:"candidatePhone"`
	ClientName     string           `json:"clientName" bson:"clientName"`
	Designation    string           `json:"designation" bson:"designation"`
	Status         AssignmentStatus `json:"status" bson:"status"`
	JoiningDate    civil.Date       `json:"joiningDate" bson:"-"`

	Feedback      string `json:"-" bson:"feedback"`
	LedgerVersion int64  `json:"ledgerVersion" bson:"ledgerVersion"`

	LatestRemark   string     `json:"latestRemark" bson:"latestRemark"`
	LatestFeedback string     `json:"latestFeedback" bson:"latestFeedback"`
	NFD            civil.Date `json:"nfd" bson:"-"`
	EJD            civil.Date `json:"ejd" bson:"-"`
	IFD            civil.Date `json:"ifd" bson:"-"`
	CallStatus     CallStatus `json:"callStatus" bson:"callStatus"`
	LastUpdateTime time.Time  `json:"lastUpdateTime" bson:"lastUpdateTime"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// ApplyTail 用最新一条跟进记录刷新冗余字段
func (a *JobAssignment) ApplyTail(entry FeedbackEntry) {
	a.LatestRemark = entry.Remark
	a.LatestFeedback = entry.FeedbackText
	a.NFD = entry.NFD
	a.EJD = entry.EJD
	a.IFD = entry.IFD
	a.CallStatus = entry.CallStatus
	a.LastUpdateTime = entry.Timestamp
	a.UpdatedAt = entry.Timestamp
}

// CreateJobAssignmentRequest 创建职位对接请求
type CreateJobAssignmentRequest struct {
	CandidateID    string `json:"candidateId" binding:"required"`
	CandidateName  string `json:"candidateName"`
	CandidatePhone string `json:"candidatePhone"`
	ClientName     string `json:"clientName" binding:"required"`
	Designation    string `json:"designation" binding:"required"`
	Status         string `json:"status"`
	JoiningDate    string `json:"joiningDate"`
}
