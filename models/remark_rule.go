package models

import "cloud.google.com/go/civil"

// RemarkRule 备注 -> 跟进日期偏移 + 预设反馈
type RemarkRule struct {
	Key        string `json:"key" mapstructure:"key"`
	OffsetDays int    `json:"offsetDays" mapstructure:"offset"`
	Template   string `json:"template" mapstructure:"template"`
}

// PhoneRecord 号码在候选人池中的一条出现记录
type PhoneRecord struct {
	CandidateID string           `json:"candidateId"`
	Phone       string           `json:"phone"`
	Status      AssignmentStatus `json:"status"`
	JoiningDate civil.Date       `json:"joiningDate"`
}
