// Package ledger 负责把一个职位对接的全部跟进记录编码进单个文本字段，以及反向解析。
//
// 每条记录编码为固定字段顺序、带标签的片段，片段之间用 Delimiter 连接。
// 标签始终写出（即使值为空），解析时以标签为锚点，而不是按位置切分，
// 因为反馈内容本身可能包含句号和冒号。
package ledger

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/BerniceZTT/crm_engagement/models"
)

// Delimiter 片段分隔符
const Delimiter = "#~~~#"

// TimestampLayout 提交时间的本地时间格式
const TimestampLayout = "2006-01-02 15:04:05"

const dateLayout = "2006-01-02"

// ErrInvalidEntry 反馈内容为空
var ErrInvalidEntry = errors.New("ledger: feedback text is required")

// 当前版本的完整片段格式
var primaryPattern = regexp.MustCompile(
	`(?s)^\s*Feedback: ?(.*) \| Remark: ?(.*?) \| NFD: ?(.*?) \| EJD: ?(.*?) \| IFD: ?(.*?) \| Call: ?(.*?) \| By: ?(.*?) \| At: ?(.*?)\s*$`,
)

// 旧版本写入的片段：标签可能带别名，分隔符可能是 | ; , 中的任意一个，键值之间可能是 : - =
var fallbackLabelPattern = regexp.MustCompile(
	`(?i)(?:^|[|;,\n]|\s)\s*(feedback|comments?|remarks?|nfd|next follow-?up date|ejd|expected joining date|ifd|interview (?:fixed )?date|call status|call|author|updated by|by|timestamp|time|at)\s*[:=\-]\s*`,
)

type field int

const (
	fieldFeedback field = iota
	fieldRemark
	fieldNFD
	fieldEJD
	fieldIFD
	fieldCall
	fieldBy
	fieldAt
	fieldCount
)

var fallbackAliases = map[string]field{
	"feedback":              fieldFeedback,
	"comment":               fieldFeedback,
	"comments":              fieldFeedback,
	"remark":                fieldRemark,
	"remarks":               fieldRemark,
	"nfd":                   fieldNFD,
	"next followup date":    fieldNFD,
	"next follow-up date":   fieldNFD,
	"ejd":                   fieldEJD,
	"expected joining date": fieldEJD,
	"ifd":                   fieldIFD,
	"interview date":        fieldIFD,
	"interview fixed date":  fieldIFD,
	"call":                  fieldCall,
	"call status":           fieldCall,
	"by":                    fieldBy,
	"author":                fieldBy,
	"updated by":            fieldBy,
	"at":                    fieldAt,
	"time":                  fieldAt,
	"timestamp":             fieldAt,
}

// EncodeEntry 编码单条记录
func EncodeEntry(entry models.FeedbackEntry) (string, error) {
	if strings.TrimSpace(entry.FeedbackText) == "" {
		return "", ErrInvalidEntry
	}

	var b strings.Builder
	b.WriteString("Feedback: ")
	b.WriteString(escapeField(entry.FeedbackText))
	b.WriteString(" | Remark: ")
	b.WriteString(escapeField(entry.Remark))
	b.WriteString(" | NFD: ")
	b.WriteString(formatDate(entry.NFD))
	b.WriteString(" | EJD: ")
	b.WriteString(formatDate(entry.EJD))
	b.WriteString(" | IFD: ")
	b.WriteString(formatDate(entry.IFD))
	b.WriteString(" | Call: ")
	b.WriteString(formatCallStatus(entry.CallStatus))
	b.WriteString(" | By: ")
	b.WriteString(escapeField(entry.AuthorCode))
	b.WriteString(" | At: ")
	if !entry.Timestamp.IsZero() {
		b.WriteString(entry.Timestamp.In(time.Local).Format(TimestampLayout))
	}
	return b.String(), nil
}

// Encode 编码完整账本，顺序即提交顺序
func Encode(entries []models.FeedbackEntry) (string, error) {
	fragments := make([]string, 0, len(entries))
	for _, entry := range entries {
		fragment, err := EncodeEntry(entry)
		if err != nil {
			return "", err
		}
		fragments = append(fragments, fragment)
	}
	return strings.Join(fragments, Delimiter), nil
}

// Append 在已有账本末尾追加一条记录。
// 旧片段按原样保留，不会被重新编码，避免旧格式数据在改写时丢失。
func Append(blob string, entry models.FeedbackEntry) (string, error) {
	fragment, err := EncodeEntry(entry)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(blob) == "" {
		return fragment, nil
	}
	return blob + Delimiter + fragment, nil
}

// Fragments 返回账本中所有非空片段
func Fragments(blob string) []string {
	parts := strings.Split(blob, Delimiter)
	fragments := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		fragments = append(fragments, part)
	}
	return fragments
}

// Decode 解析账本。永远不会失败：无法识别的字段解析为空值。
func Decode(blob string) []models.FeedbackEntry {
	fragments := Fragments(blob)
	entries := make([]models.FeedbackEntry, 0, len(fragments))
	for _, fragment := range fragments {
		entries = append(entries, DecodeFragment(fragment))
	}
	return entries
}

// DecodeFragment 解析单个片段
func DecodeFragment(fragment string) models.FeedbackEntry {
	values := matchPrimary(fragment)
	if values == nil {
		values = matchFallback(fragment)
	}

	return models.FeedbackEntry{
		FeedbackText: values[fieldFeedback],
		Remark:       values[fieldRemark],
		NFD:          parseDate(values[fieldNFD]),
		EJD:          parseDate(values[fieldEJD]),
		IFD:          parseDate(values[fieldIFD]),
		CallStatus:   models.ParseCallStatus(values[fieldCall]),
		AuthorCode:   values[fieldBy],
		Timestamp:    parseTimestamp(values[fieldAt]),
	}
}

func matchPrimary(fragment string) []string {
	m := primaryPattern.FindStringSubmatch(fragment)
	if m == nil {
		return nil
	}
	values := m[1:]
	for _, f := range []field{fieldFeedback, fieldRemark, fieldBy} {
		values[f] = unescapeField(values[f])
	}
	return values
}

func matchFallback(fragment string) []string {
	values := make([]string, fieldCount)
	seen := make([]bool, fieldCount)

	matches := fallbackLabelPattern.FindAllStringSubmatchIndex(fragment, -1)
	for i, m := range matches {
		label := strings.ToLower(fragment[m[2]:m[3]])
		f, ok := fallbackAliases[label]
		if !ok || seen[f] {
			continue
		}

		end := len(fragment)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		values[f] = strings.Trim(fragment[m[1]:end], " \t\r\n|;,")
		seen[f] = true
	}
	return values
}

// 自由文本字段中的 \ # | 加反斜杠转义：转义后的值里每个 # 前面都是 \，
// 不可能再拼出分隔符；每个 | 前面也都是 \，不会被当成 " | Label: " 锚点
var fieldEscaper = strings.NewReplacer(`\`, `\\`, "#", `\#`, "|", `\|`)

func escapeField(s string) string {
	return fieldEscaper.Replace(s)
}

// unescapeField 只还原 \\ \# \|，其余反斜杠原样保留
func unescapeField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(`\#|`, s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func formatDate(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

var legacyDateLayouts = []string{
	dateLayout,
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
}

func parseDate(s string) civil.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t)
		}
	}
	return civil.Date{}
}

var legacyTimestampLayouts = []string{
	TimestampLayout,
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range legacyTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(time.Local)
	}
	return time.Time{}
}

func formatCallStatus(s models.CallStatus) string {
	switch s {
	case models.CallStatusAnswered:
		return "Answered"
	case models.CallStatusNotAnswered:
		return "Not Answered"
	default:
		return ""
	}
}
