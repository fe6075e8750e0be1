package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/ledger"
	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// assignmentDocument jobAssignments 集合中的文档
//
// 日期字段以 yyyy-mm-dd 字符串保存，旧数据中缺失的 ledgerVersion 视为 0。
type assignmentDocument struct {
	ID             string    `bson:"_id"`
	CandidateID    string    `bson:"candidateId"`
	CandidateName  string    `bson:"candidateName"`
	CandidatePhone string    `bson:"candidatePhone"`
	PhoneKey       string    `bson:"phoneKey"`
	ClientName     string    `bson:"clientName"`
	Designation    string    `bson:"designation"`
	Status         string    `bson:"status"`
	JoiningDate    string    `bson:"joiningDate,omitempty"`
	Feedback       string    `bson:"feedback"`
	LedgerVersion  int64     `bson:"ledgerVersion"`
	LatestRemark   string    `bson:"latestRemark"`
	LatestFeedback string    `bson:"latestFeedback"`
	NFD            string    `bson:"nfd,omitempty"`
	EJD            string    `bson:"ejd,omitempty"`
	IFD            string    `bson:"ifd,omitempty"`
	CallStatus     string    `bson:"callStatus"`
	LastUpdateTime time.Time `bson:"lastUpdateTime"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func toDocument(a *models.JobAssignment) assignmentDocument {
	return assignmentDocument{
		ID:             a.ID,
		CandidateID:    a.CandidateID,
		CandidateName:  a.CandidateName,
		CandidatePhone: a.CandidatePhone,
		PhoneKey:       masking.NormalizePhone(a.CandidatePhone),
		ClientName:     a.ClientName,
		Designation:    a.Designation,
		Status:         string(a.Status),
		JoiningDate:    dateString(a.JoiningDate),
		Feedback:       a.Feedback,
		LedgerVersion:  a.LedgerVersion,
		LatestRemark:   a.LatestRemark,
		LatestFeedback: a.LatestFeedback,
		NFD:            dateString(a.NFD),
		EJD:            dateString(a.EJD),
		IFD:            dateString(a.IFD),
		CallStatus:     string(a.CallStatus),
		LastUpdateTime: a.LastUpdateTime,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (d assignmentDocument) toModel() models.JobAssignment {
	return models.JobAssignment{
		ID:             d.ID,
		CandidateID:    d.CandidateID,
		CandidateName:  d.CandidateName,
		CandidatePhone: d.CandidatePhone,
		ClientName:     d.ClientName,
		Designation:    d.Designation,
		Status:         models.AssignmentStatus(d.Status),
		JoiningDate:    parseDateString(d.JoiningDate),
		Feedback:       d.Feedback,
		LedgerVersion:  d.LedgerVersion,
		LatestRemark:   d.LatestRemark,
		LatestFeedback: d.LatestFeedback,
		NFD:            parseDateString(d.NFD),
		EJD:            parseDateString(d.EJD),
		IFD:            parseDateString(d.IFD),
		CallStatus:     models.ParseCallStatus(d.CallStatus),
		LastUpdateTime: d.LastUpdateTime,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func dateString(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseDateString(s string) civil.Date {
	if s == "" {
		return civil.Date{}
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}
	}
	return d
}

// MongoLedgerStore 账本保存在 jobAssignments.feedback 单个文本字段中。
// 追加时按 ledgerVersion 做乐观并发控制，单文档更新保证不会写出截断的账本。
type MongoLedgerStore struct {
	coll *mongo.Collection
	opts storeOptions
}

// NewMongoLedgerStore 创建MongoDB存储
func NewMongoLedgerStore(db *mongo.Database, opts ...Option) *MongoLedgerStore {
	return &MongoLedgerStore{
		coll: db.Collection(JobAssignmentsCollection),
		opts: buildOptions(opts),
	}
}

func (s *MongoLedgerStore) CreateAssignment(ctx context.Context, a *models.JobAssignment) (*models.JobAssignment, error) {
	created := prepareAssignment(a, s.opts.now())
	doc := toDocument(created)

	_, err := ExecuteDbOperation(ctx, func(ctx context.Context) (*mongo.InsertOneResult, error) {
		return s.coll.InsertOne(ctx, doc)
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("创建职位对接失败: %w", err)
	}
	utils.LogDbOperation("insert", JobAssignmentsCollection, bson.M{"_id": created.ID}, nil)
	return created, nil
}

func (s *MongoLedgerStore) GetAssignment(ctx context.Context, id string) (*models.JobAssignment, error) {
	doc, err := s.findOne(ctx, id)
	if err != nil {
		return nil, err
	}
	a := doc.toModel()
	return &a, nil
}

func (s *MongoLedgerStore) findOne(ctx context.Context, id string) (*assignmentDocument, error) {
	doc, err := ExecuteDbOperation(ctx, func(ctx context.Context) (*assignmentDocument, error) {
		var d assignmentDocument
		if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
			return nil, err
		}
		return &d, nil
	}, 3)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询职位对接失败: %w", err)
	}
	return doc, nil
}

func (s *MongoLedgerStore) ListAssignmentsByCandidate(ctx context.Context, candidateID string) ([]models.JobAssignment, error) {
	return s.find(ctx, bson.M{"candidateId": candidateID})
}

// Append 读取当前版本，追加后按版本号条件更新；版本不匹配则重新读取重试
func (s *MongoLedgerStore) Append(ctx context.Context, jobAssignmentID string, entry models.FeedbackEntry) (*models.JobAssignment, error) {
	stamped := stampEntry(entry, s.opts.now())
	if _, err := ledger.EncodeEntry(stamped); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		doc, err := s.findOne(ctx, jobAssignmentID)
		if err != nil {
			return nil, err
		}

		updated, err := s.compareAndAppend(ctx, doc, stamped)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, errConflict) {
			return nil, err
		}

		utils.Logger.Warn().
			Str("jobAssignmentId", jobAssignmentID).
			Int64("version", doc.LedgerVersion).
			Msgf("跟进记录版本冲突，重试 (%d/%d)", attempt, s.opts.maxAttempts)
	}

	return nil, fmt.Errorf("%w: %s", ErrRetryExhausted, jobAssignmentID)
}

func (s *MongoLedgerStore) compareAndAppend(ctx context.Context, doc *assignmentDocument, entry models.FeedbackEntry) (*models.JobAssignment, error) {
	blob, err := ledger.Append(doc.Feedback, entry)
	if err != nil {
		return nil, err
	}

	a := doc.toModel()
	a.Feedback = blob
	a.LedgerVersion = doc.LedgerVersion + 1
	a.ApplyTail(entry)

	filter := bson.M{"_id": doc.ID, "ledgerVersion": doc.LedgerVersion}
	if doc.LedgerVersion == 0 {
		filter = bson.M{
			"_id": doc.ID,
			"$or": bson.A{
				bson.M{"ledgerVersion": 0},
				bson.M{"ledgerVersion": bson.M{"$exists": false}},
			},
		}
	}
	next := toDocument(&a)
	update := bson.M{"$set": bson.M{
		"feedback":       next.Feedback,
		"ledgerVersion":  next.LedgerVersion,
		"latestRemark":   next.LatestRemark,
		"latestFeedback": next.LatestFeedback,
		"nfd":            next.NFD,
		"ejd":            next.EJD,
		"ifd":            next.IFD,
		"callStatus":     next.CallStatus,
		"lastUpdateTime": next.LastUpdateTime,
		"updatedAt":      next.UpdatedAt,
	}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("更新跟进记录失败: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, errConflict
	}
	utils.LogDbOperation("append", JobAssignmentsCollection, bson.M{"_id": doc.ID, "ledgerVersion": a.LedgerVersion}, res)
	return &a, nil
}

func (s *MongoLedgerStore) ReadAll(ctx context.Context, jobAssignmentID string) ([]models.FeedbackEntry, error) {
	doc, err := s.findOne(ctx, jobAssignmentID)
	if err != nil {
		return nil, err
	}
	return ledger.Decode(doc.Feedback), nil
}

func (s *MongoLedgerStore) ReadAllForCandidate(ctx context.Context, candidateID string, order models.HistoryOrder) ([]models.TaggedEntry, error) {
	assignments, err := s.ListAssignmentsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	ledgers := make([]AssignmentLedger, 0, len(assignments))
	for _, a := range assignments {
		ledgers = append(ledgers, AssignmentLedger{Assignment: a, Entries: ledger.Decode(a.Feedback)})
	}
	return MergeLedgers(ledgers, order), nil
}

func (s *MongoLedgerStore) ListDueFollowUps(ctx context.Context, date civil.Date) ([]models.JobAssignment, error) {
	return s.find(ctx, bson.M{"nfd": date.String()})
}

// PhoneHistory 旧数据没有 phoneKey，同时按原始号码匹配
func (s *MongoLedgerStore) PhoneHistory(ctx context.Context, phone string) ([]models.PhoneRecord, error) {
	key := masking.NormalizePhone(phone)
	if key == "" {
		return nil, nil
	}
	assignments, err := s.find(ctx, bson.M{"$or": bson.A{
		bson.M{"phoneKey": key},
		bson.M{"candidatePhone": key},
	}})
	if err != nil {
		return nil, err
	}
	return phoneRecordsFrom(assignments), nil
}

// ListAll 按创建时间返回全部职位对接，含账本文本，供导出到有序日志表
func (s *MongoLedgerStore) ListAll(ctx context.Context) ([]models.JobAssignment, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoLedgerStore) find(ctx context.Context, filter bson.M) ([]models.JobAssignment, error) {
	docs, err := ExecuteDbOperation(ctx, func(ctx context.Context) ([]assignmentDocument, error) {
		cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
		if err != nil {
			return nil, err
		}
		defer cursor.Close(ctx)

		var out []assignmentDocument
		if err := cursor.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("查询职位对接失败: %w", err)
	}

	assignments := make([]models.JobAssignment, 0, len(docs))
	for _, d := range docs {
		assignments = append(assignments, d.toModel())
	}
	return assignments, nil
}
