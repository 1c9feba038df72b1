package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

// ────────────────────── 题目导入 ──────────────────────

// maxQuestionPoints 单题分值上限，与 JSON 接口的 binding 一致
const maxQuestionPoints = 100

const (
	maxImportRows       = 1000
	maxImportRowErrors  = 50
	defaultImportPoints = 1
)

var (
	ErrImportNoData      = errors.New("文件无数据行（第一行为表头）")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("表头缺少必要列（题目/答案）")
	ErrImportBadFormat   = errors.New("仅支持 .xlsx 与 .csv 文件")
)

var optionLetters = []string{"a", "b", "c", "d"}

// readImportRows 按扩展名读取 xlsx 首个工作表或 csv
func readImportRows(r io.Reader, filename string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("无法解析Excel文件: %w", err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("读取工作表失败: %w", err)
		}
		return rows, nil
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("无法解析CSV文件: %w", err)
		}
		// 去掉 UTF-8 BOM
		if len(rows) > 0 && len(rows[0]) > 0 {
			rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
		}
		return rows, nil
	default:
		return nil, ErrImportBadFormat
	}
}

// questionColumns 表头列索引，-1 表示缺失
type questionColumns struct {
	text, qtype, options, answer, points int
	letters                              [4]int
}

// parseQuestionHeader 解析表头（列序灵活，支持中英阿别名）
func parseQuestionHeader(header []string) questionColumns {
	cols := questionColumns{text: -1, qtype: -1, options: -1, answer: -1, points: -1, letters: [4]int{-1, -1, -1, -1}}
	for i, h := range header {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch lower {
		case "question", "text", "q", "السؤال", "题目":
			cols.text = i
		case "type", "question_type", "النوع", "题型":
			cols.qtype = i
		case "options", "choices", "الخيارات", "选项":
			cols.options = i
		case "answer", "correct", "correct_answer", "الإجابة", "答案":
			cols.answer = i
		case "points", "score", "mark", "الدرجة", "分值":
			cols.points = i
		default:
			for j, l := range optionLetters {
				if lower == l || lower == "option_"+l || lower == "option "+l || lower == "选项"+l {
					cols.letters[j] = i
				}
			}
		}
	}
	return cols
}

// parseQuestionRows 逐行解析并校验，返回合法题目与导入报告
func parseQuestionRows(rows [][]string) ([]model.Question, *dto.ImportResponse, error) {
	if len(rows) < 2 {
		return nil, nil, ErrImportNoData
	}
	cols := parseQuestionHeader(rows[0])
	if cols.text < 0 || cols.answer < 0 {
		return nil, nil, ErrImportBadHeader
	}

	resp := &dto.ImportResponse{Errors: []dto.ImportRowError{}}
	var questions []model.Question

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		resp.Total++
		if resp.Total > maxImportRows {
			return nil, nil, ErrImportTooManyRows
		}

		q, reason := questionFromRow(row, cols)
		if reason != "" {
			resp.Failed++
			if len(resp.Errors) < maxImportRowErrors {
				resp.Errors = append(resp.Errors, dto.ImportRowError{Row: i + 1, Reason: reason})
			}
			continue
		}
		resp.Success++
		questions = append(questions, q)
	}

	if resp.Total == 0 {
		return nil, nil, ErrImportNoData
	}
	return questions, resp, nil
}

func questionFromRow(row []string, cols questionColumns) (model.Question, string) {
	q := model.Question{
		Text:   cellAt(row, cols.text),
		Type:   strings.ToLower(cellAt(row, cols.qtype)),
		Answer: cellAt(row, cols.answer),
		Points: defaultImportPoints,
	}

	if raw := cellAt(row, cols.options); raw != "" {
		for _, o := range strings.Split(raw, "|") {
			if o = strings.TrimSpace(o); o != "" {
				q.Options = append(q.Options, o)
			}
		}
	} else {
		for _, idx := range cols.letters {
			if o := cellAt(row, idx); o != "" {
				q.Options = append(q.Options, o)
			}
		}
	}

	if raw := cellAt(row, cols.points); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > maxQuestionPoints {
			return q, "分值无效"
		}
		q.Points = p
	}

	if q.Type == "" {
		q.Type = inferQuestionType(q)
	}
	return normalizeQuestion(q)
}

// inferQuestionType 未填题型时：有选项为单选，答案为 true/false 为判断，否则简答
func inferQuestionType(q model.Question) string {
	switch {
	case len(q.Options) > 0:
		return model.QuestionMCQ
	case isTrueFalse(q.Answer):
		return model.QuestionTrueFalse
	default:
		return model.QuestionShort
	}
}

// normalizeQuestion 校验题目并规范答案，返回失败原因（合法时为空）
// 单选题字母答案 A..D 转换为对应选项文本
func normalizeQuestion(q model.Question) (model.Question, string) {
	q.Text = strings.TrimSpace(q.Text)
	q.Answer = strings.TrimSpace(q.Answer)
	if q.Text == "" {
		return q, "题目不能为空"
	}
	if q.Answer == "" {
		return q, "答案不能为空"
	}

	switch q.Type {
	case model.QuestionMCQ:
		if len(q.Options) < 2 {
			return q, "单选题至少需要 2 个选项"
		}
		answer, ok := matchOption(q.Options, q.Answer)
		if !ok {
			return q, "答案与选项不匹配"
		}
		q.Answer = answer
	case model.QuestionTrueFalse:
		if !isTrueFalse(q.Answer) {
			return q, "判断题答案必须为 true 或 false"
		}
		q.Answer = strings.ToLower(q.Answer)
		q.Options = []string{"true", "false"}
	case model.QuestionShort:
		q.Options = nil
	default:
		return q, "未知题型 " + q.Type
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return q, ""
}

func matchOption(options []string, answer string) (string, bool) {
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), answer) {
			return o, true
		}
	}
	if len(answer) == 1 {
		for i, l := range optionLetters {
			if strings.EqualFold(answer, l) && i < len(options) {
				return options[i], true
			}
		}
	}
	return "", false
}

func isTrueFalse(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "false"
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
