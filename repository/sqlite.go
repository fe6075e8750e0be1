package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/BerniceZTT/crm_engagement/ledger"
	"github.com/BerniceZTT/crm_engagement/masking"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/repository/migrations"
	"github.com/BerniceZTT/crm_engagement/repository/sqlitemigrate"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// SQLiteStore 显式的有序日志表：每条跟进记录一行，按 (job_assignment_id, seq) 唯一。
// 排序依据是 seq，不依赖客户端时间。
type SQLiteStore struct {
	db   *sql.DB
	opts storeOptions
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).Local()
}

// OpenSQLite 打开数据库并执行内嵌迁移
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	utils.Logger.Info().Str("path", path).Msg("已打开SQLite存储")
	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const assignmentColumns = `id, candidate_id, candidate_name, candidate_phone, client_name, designation, status,
	joining_date, ledger_version, latest_remark, latest_feedback, nfd, ejd, ifd, call_status,
	last_update_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (models.JobAssignment, error) {
	var (
		a                                    models.JobAssignment
		status, joining, nfd, ejd, ifd, call string
		lastUpdate, createdAt, updatedAt     int64
	)
	err := row.Scan(&a.ID, &a.CandidateID, &a.CandidateName, &a.CandidatePhone, &a.ClientName, &a.Designation,
		&status, &joining, &a.LedgerVersion, &a.LatestRemark, &a.LatestFeedback, &nfd, &ejd, &ifd, &call,
		&lastUpdate, &createdAt, &updatedAt)
	if err != nil {
		return a, err
	}
	a.Status = models.AssignmentStatus(status)
	a.JoiningDate = parseDateString(joining)
	a.NFD = parseDateString(nfd)
	a.EJD = parseDateString(ejd)
	a.IFD = parseDateString(ifd)
	a.CallStatus = models.ParseCallStatus(call)
	a.LastUpdateTime = fromMillis(lastUpdate)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *models.JobAssignment) (*models.JobAssignment, error) {
	created := prepareAssignment(a, s.opts.now())
	if err := s.insertAssignment(ctx, s.db, created); err != nil {
		return nil, err
	}
	return created, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertAssignment(ctx context.Context, db execer, a *models.JobAssignment) error {
	_, err := db.ExecContext(ctx, `INSERT INTO job_assignments (`+assignmentColumns+`, phone_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CandidateID, a.CandidateName, a.CandidatePhone, a.ClientName, a.Designation, string(a.Status),
		dateString(a.JoiningDate), a.LedgerVersion, a.LatestRemark, a.LatestFeedback,
		dateString(a.NFD), dateString(a.EJD), dateString(a.IFD), string(models.ParseCallStatus(string(a.CallStatus))),
		toMillis(a.LastUpdateTime), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
		masking.NormalizePhone(a.CandidatePhone),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("职位对接已存在: %s", a.ID)
		}
		return fmt.Errorf("create job assignment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (*models.JobAssignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM job_assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job assignment: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) ListAssignmentsByCandidate(ctx context.Context, candidateID string) ([]models.JobAssignment, error) {
	return s.queryAssignments(ctx, `WHERE candidate_id = ?`, candidateID)
}

func (s *SQLiteStore) ListDueFollowUps(ctx context.Context, date civil.Date) ([]models.JobAssignment, error) {
	return s.queryAssignments(ctx, `WHERE nfd = ?`, date.String())
}

func (s *SQLiteStore) PhoneHistory(ctx context.Context, phone string) ([]models.PhoneRecord, error) {
	key := masking.NormalizePhone(phone)
	if key == "" {
		return nil, nil
	}
	assignments, err := s.queryAssignments(ctx, `WHERE phone_key = ?`, key)
	if err != nil {
		return nil, err
	}
	return phoneRecordsFrom(assignments), nil
}

func (s *SQLiteStore) queryAssignments(ctx context.Context, where string, args ...any) ([]models.JobAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM job_assignments `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query job assignments: %w", err)
	}
	defer rows.Close()

	var out []models.JobAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Append 在一个事务中插入下一条 seq 并刷新冗余字段。
// seq 冲突或数据库忙时重试；事务中途取消会整体回滚。
func (s *SQLiteStore) Append(ctx context.Context, jobAssignmentID string, entry models.FeedbackEntry) (*models.JobAssignment, error) {
	stamped := stampEntry(entry, s.opts.now())
	if _, err := ledger.EncodeEntry(stamped); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		updated, err := s.appendOnce(ctx, jobAssignmentID, stamped)
		if err == nil {
			return updated, nil
		}
		if !isUniqueViolation(err) && !isBusy(err) {
			return nil, err
		}
		utils.Logger.Warn().Err(err).
			Str("jobAssignmentId", jobAssignmentID).
			Msgf("跟进记录写入冲突，重试 (%d/%d)", attempt, s.opts.maxAttempts)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt*10) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRetryExhausted, jobAssignmentID)
}

func (s *SQLiteStore) appendOnce(ctx context.Context, id string, entry models.FeedbackEntry) (*models.JobAssignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM job_assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job assignment: %w", err)
	}

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ledger_entries WHERE job_assignment_id = ?`, id,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("load ledger seq: %w", err)
	}

	seq := last + 1
	if err := insertEntry(ctx, tx, id, seq, entry, ""); err != nil {
		return nil, err
	}

	a.LedgerVersion = seq
	a.ApplyTail(entry)
	if err := updateMirror(ctx, tx, &a); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return &a, nil
}

func insertEntry(ctx context.Context, db execer, assignmentID string, seq int64, e models.FeedbackEntry, raw string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO ledger_entries (
		   id, job_assignment_id, seq, feedback_text, remark, nfd, ejd, ifd, call_status, author_code, committed_at, raw_fragment
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), assignmentID, seq, e.FeedbackText, e.Remark,
		dateString(e.NFD), dateString(e.EJD), dateString(e.IFD), string(models.ParseCallStatus(string(e.CallStatus))),
		e.AuthorCode, toMillis(e.Timestamp), raw,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func updateMirror(ctx context.Context, db execer, a *models.JobAssignment) error {
	_, err := db.ExecContext(ctx, `UPDATE job_assignments SET
		   ledger_version = ?, latest_remark = ?, latest_feedback = ?, nfd = ?, ejd = ?, ifd = ?,
		   call_status = ?, last_update_time = ?, updated_at = ?
		 WHERE id = ?`,
		a.LedgerVersion, a.LatestRemark, a.LatestFeedback, dateString(a.NFD), dateString(a.EJD), dateString(a.IFD),
		string(a.CallStatus), toMillis(a.LastUpdateTime), toMillis(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update job assignment mirror: %w", err)
	}
	return nil
}

type storedEntry struct {
	entry models.FeedbackEntry
	seq   int64
	raw   string
}

func (s *SQLiteStore) entries(ctx context.Context, assignmentID string) ([]storedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, feedback_text, remark, nfd, ejd, ifd, call_status, author_code, committed_at, raw_fragment
		FROM ledger_entries WHERE job_assignment_id = ? ORDER BY seq`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []storedEntry
	for rows.Next() {
		var (
			se                  storedEntry
			nfd, ejd, ifd, call string
			committed           int64
		)
		if err := rows.Scan(&se.seq, &se.entry.FeedbackText, &se.entry.Remark, &nfd, &ejd, &ifd, &call,
			&se.entry.AuthorCode, &committed, &se.raw); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		se.entry.NFD = parseDateString(nfd)
		se.entry.EJD = parseDateString(ejd)
		se.entry.IFD = parseDateString(ifd)
		se.entry.CallStatus = models.ParseCallStatus(call)
		se.entry.Timestamp = fromMillis(committed)
		out = append(out, se)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReadAll(ctx context.Context, jobAssignmentID string) ([]models.FeedbackEntry, error) {
	if _, err := s.GetAssignment(ctx, jobAssignmentID); err != nil {
		return nil, err
	}
	stored, err := s.entries(ctx, jobAssignmentID)
	if err != nil {
		return nil, err
	}
	out := make([]models.FeedbackEntry, 0, len(stored))
	for _, se := range stored {
		out = append(out, se.entry)
	}
	return out, nil
}

func (s *SQLiteStore) ReadAllForCandidate(ctx context.Context, candidateID string, order models.HistoryOrder) ([]models.TaggedEntry, error) {
	assignments, err := s.ListAssignmentsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	ledgers := make([]AssignmentLedger, 0, len(assignments))
	for _, a := range assignments {
		entries, err := s.ReadAll(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, AssignmentLedger{Assignment: a, Entries: entries})
	}
	return MergeLedgers(ledgers, order), nil
}

// ImportLegacy 把带旧账本文本的职位对接拆分写入有序日志表，原始片段一并保存
func (s *SQLiteStore) ImportLegacy(ctx context.Context, a *models.JobAssignment) (int, error) {
	if strings.TrimSpace(a.ID) == "" {
		return 0, fmt.Errorf("职位对接ID不能为空")
	}
	fragments := ledger.Fragments(a.Feedback)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	imported := *a
	if imported.CreatedAt.IsZero() {
		imported.CreatedAt = s.opts.now()
	}
	if imported.UpdatedAt.IsZero() {
		imported.UpdatedAt = imported.CreatedAt
	}
	imported.LedgerVersion = int64(len(fragments))
	if len(fragments) > 0 {
		imported.ApplyTail(ledger.DecodeFragment(fragments[len(fragments)-1]))
	}
	if err := s.insertAssignment(ctx, tx, &imported); err != nil {
		return 0, err
	}
	for i, fragment := range fragments {
		if err := insertEntry(ctx, tx, imported.ID, int64(i+1), ledger.DecodeFragment(fragment), fragment); err != nil {
			return 0, fmt.Errorf("import fragment %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(fragments), nil
}

// ExportLegacy 按 seq 重新拼出账本文本；导入的记录使用原始片段
func (s *SQLiteStore) ExportLegacy(ctx context.Context, jobAssignmentID string) (string, error) {
	if _, err := s.GetAssignment(ctx, jobAssignmentID); err != nil {
		return "", err
	}
	stored, err := s.entries(ctx, jobAssignmentID)
	if err != nil {
		return "", err
	}
	fragments := make([]string, 0, len(stored))
	for _, se := range stored {
		if se.raw != "" {
			fragments = append(fragments, se.raw)
			continue
		}
		fragment, err := ledger.EncodeEntry(se.entry)
		if err != nil {
			return "", fmt.Errorf("encode seq %d: %w", se.seq, err)
		}
		fragments = append(fragments, fragment)
	}
	return strings.Join(fragments, ledger.Delimiter), nil
}

// LoadRemarkRules 读取 system_configs 中的备注规则
func (s *SQLiteStore) LoadRemarkRules(ctx context.Context) (interface{}, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT config_value FROM system_configs WHERE config_type = ? AND config_key = ? AND is_enabled = 1`,
		string(models.ConfigTypeRemarkRules), models.RemarkRulesConfigKey,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load remark rules: %w", err)
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("decode remark rules: %w", err)
	}
	return value, true, nil
}

// SaveRemarkRules 覆盖保存备注规则
func (s *SQLiteStore) SaveRemarkRules(ctx context.Context, rules []models.RemarkRule, description string, operator *models.Operator) error {
	value := make([]map[string]interface{}, 0, len(rules))
	for _, r := range rules {
		value = append(value, map[string]interface{}{"key": r.Key, "offset": r.OffsetDays, "template": r.Template})
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode remark rules: %w", err)
	}
	var updaterID, updaterName string
	if operator != nil {
		updaterID, updaterName = operator.ID, operator.Name
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO system_configs (
		   config_type, config_key, config_value, description, is_enabled, updater_id, updater_name, updated_at
		 ) VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT (config_type, config_key) DO UPDATE SET
		   config_value = excluded.config_value,
		   description = excluded.description,
		   is_enabled = 1,
		   updater_id = excluded.updater_id,
		   updater_name = excluded.updater_name,
		   updated_at = excluded.updated_at`,
		string(models.ConfigTypeRemarkRules), models.RemarkRulesConfigKey, string(payload), description,
		updaterID, updaterName, toMillis(s.opts.now()),
	)
	if err != nil {
		return fmt.Errorf("save remark rules: %w", err)
	}
	return nil
}

// SaveOperationLog 保存操作日志，请求和响应体以 JSON 保存
func (s *SQLiteStore) SaveOperationLog(ctx context.Context, log *models.OperationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	payload, err := json.Marshal(map[string]interface{}{
		"requestBody":    log.RequestBody,
		"requestHeaders": log.RequestHeader,
		"responseData":   log.ResponseData,
	})
	if err != nil {
		payload = []byte("{}")
	}
	success := 0
	if log.Success {
		success = 1
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO operation_logs (
		   id, request_id, method, path, operator_id, operator_name, operator_type, status_code, success,
		   error_message, payload, operation_time, response_time, ip_address, user_agent
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.RequestID, log.Method, log.Path, log.OperatorID, log.OperatorName, log.OperatorType,
		log.StatusCode, success, log.ErrorMessage, string(payload), toMillis(log.OperationTime), log.ResponseTime,
		log.IPAddress, log.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("save operation log: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
	}
	return false
}

// Status 各表行数
func (s *SQLiteStore) Status(ctx context.Context) (map[string]interface{}, error) {
	result := map[string]interface{}{"driver": "sqlite"}
	for _, table := range []string{"job_assignments", "ledger_entries", "system_configs", "operation_logs"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		result[table] = count
	}
	return result, nil
}
