package service

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

func TestReadImportRows_CSVWithBOM(t *testing.T) {
	data := "\ufeffquestion,answer\nq1,a1\n"
	rows, err := readImportRows(strings.NewReader(data), "Q.CSV")
	if err != nil {
		t.Fatalf("readImportRows 应成功: %v", err)
	}
	if rows[0][0] != "question" {
		t.Errorf("BOM 应被去除，实际=%q", rows[0][0])
	}
}

func TestReadImportRows_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]interface{}{"题目", "选项", "答案", "分值"})
	_ = f.SetSheetRow(sheet, "A2", &[]interface{}{"1+1", "1|2|3", "2", 5})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("生成测试文件失败: %v", err)
	}

	rows, err := readImportRows(&buf, "questions.xlsx")
	if err != nil {
		t.Fatalf("readImportRows 应成功: %v", err)
	}
	questions, report, err := parseQuestionRows(rows)
	if err != nil {
		t.Fatalf("parseQuestionRows 应成功: %v", err)
	}
	if report.Success != 1 || len(questions) != 1 {
		t.Fatalf("期望 1 题成功，实际 %+v", report)
	}
	q := questions[0]
	if q.Type != model.QuestionMCQ || q.Answer != "2" || q.Points != 5 || len(q.Options) != 3 {
		t.Errorf("题目解析不正确: %+v", q)
	}
}

func TestReadImportRows_BadFormat(t *testing.T) {
	if _, err := readImportRows(strings.NewReader(""), "q.txt"); !errors.Is(err, ErrImportBadFormat) {
		t.Errorf("期望 ErrImportBadFormat，实际: %v", err)
	}
}

func TestParseQuestionRows(t *testing.T) {
	rows := [][]string{
		{"Question", "Type", "Option A", "Option B", "Answer", "Points"},
		{"Sky is blue", "", "", "", "True", ""},
		{"Capital", "", "", "", "Cairo", "2"},
		{"Pick", "", "x", "y", "b", ""},
		{"", "", "", "", "", ""},
		{"Bad points", "short", "", "", "a", "-1"},
		{"Bad type", "essay", "", "", "a", ""},
		{"MCQ no match", "mcq", "x", "y", "z", ""},
		{"NaN points", "short", "", "", "a", "NaN"},
		{"Inf points", "short", "", "", "a", "Inf"},
		{"Huge points", "short", "", "", "a", "1e12"},
		{"Over cap", "short", "", "", "a", "100.5"},
		{"At cap", "short", "", "", "a", "100"},
	}

	questions, report, err := parseQuestionRows(rows)
	if err != nil {
		t.Fatalf("parseQuestionRows 应成功: %v", err)
	}
	if report.Total != 11 || report.Success != 4 || report.Failed != 7 {
		t.Errorf("导入报告不正确: %+v", report)
	}
	wantTypes := []string{model.QuestionTrueFalse, model.QuestionShort, model.QuestionMCQ, model.QuestionShort}
	for i, q := range questions {
		if q.Type != wantTypes[i] {
			t.Errorf("第 %d 题期望题型 %s，实际=%s", i+1, wantTypes[i], q.Type)
		}
		if q.ID == "" {
			t.Errorf("第 %d 题应分配 ID", i+1)
		}
	}
	if questions[2].Answer != "y" {
		t.Errorf("字母答案 b 应转换为 y，实际=%q", questions[2].Answer)
	}
	if questions[3].Points != 100 {
		t.Errorf("分值 100 应被接受，实际=%v", questions[3].Points)
	}
	for _, e := range report.Errors[3:7] {
		if e.Reason != "分值无效" {
			t.Errorf("第 %d 行期望“分值无效”，实际=%q", e.Row, e.Reason)
		}
	}
	// 行号从表头下一行起算，空行跳过但保留行号
	if report.Errors[0].Row != 6 {
		t.Errorf("期望第一个错误在第 6 行，实际=%d", report.Errors[0].Row)
	}
}

func TestParseQuestionRows_HeaderErrors(t *testing.T) {
	if _, _, err := parseQuestionRows([][]string{{"question", "answer"}}); !errors.Is(err, ErrImportNoData) {
		t.Errorf("期望 ErrImportNoData，实际: %v", err)
	}
	if _, _, err := parseQuestionRows([][]string{{"foo", "bar"}, {"1", "2"}}); !errors.Is(err, ErrImportBadHeader) {
		t.Errorf("期望 ErrImportBadHeader，实际: %v", err)
	}
	if _, _, err := parseQuestionRows([][]string{{"question", "answer"}, {"", ""}}); !errors.Is(err, ErrImportNoData) {
		t.Errorf("全部为空行时期望 ErrImportNoData，实际: %v", err)
	}
}

func TestParseQuestionRows_TooMany(t *testing.T) {
	rows := [][]string{{"question", "answer"}}
	for i := 0; i <= maxImportRows; i++ {
		rows = append(rows, []string{"q", "a"})
	}
	if _, _, err := parseQuestionRows(rows); !errors.Is(err, ErrImportTooManyRows) {
		t.Errorf("期望 ErrImportTooManyRows，实际: %v", err)
	}
}
