package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成导出文件失败")
	ErrExportFormat       = errors.New("导出格式仅支持 csv 与 xlsx")
	ErrResultNotSubmitted = errors.New("尚未交卷，无法生成成绩单")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层按文件名后缀设置响应头
type ExportService interface {
	// ExportAttendance 导出考勤为 csv 或 xlsx
	ExportAttendance(ctx context.Context, q *dto.AttendanceExportQuery, callerID, callerRole string) (*bytes.Buffer, string, error)
	// ExportExamResults 导出考试成绩为 xlsx
	ExportExamResults(ctx context.Context, examID, callerID, callerRole string) (*bytes.Buffer, string, error)
	// ResultReportPDF 单个学生的成绩单 PDF
	ResultReportPDF(ctx context.Context, resultID, callerID, callerRole string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例；loc 用于补全缺省的考勤日期范围
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, loc: loc, now: time.Now, logger: logger}
}

var attendanceHeader = []string{"Date", "Student", "Status", "Notes"}

// ═══════════════════════════════════════════════════════════
// ExportAttendance 导出考勤
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportAttendance(ctx context.Context, q *dto.AttendanceExportQuery, callerID, callerRole string) (*bytes.Buffer, string, error) {
	class, err := loadManagedClass(ctx, s.repo, s.logger, q.ClassID, callerID, callerRole)
	if err != nil {
		return nil, "", err
	}
	from, to, err := parseDateRange(q.From, q.To, schoolToday(s.now(), s.loc))
	if err != nil {
		return nil, "", err
	}
	records, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{
		ClassID: q.ClassID,
		Status:  q.Status,
		From:    from,
		To:      to,
	})
	if err != nil {
		s.logger.Error("查询考勤失败", zap.String("class_id", q.ClassID), zap.Error(err))
		return nil, "", err
	}

	rows := attendanceRows(records)
	base := fmt.Sprintf("attendance_%s", class.Name)
	switch q.Format {
	case "", "csv":
		buf, err := writeCSV(attendanceHeader, rows)
		if err != nil {
			s.logger.Error("写入 CSV 失败", zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}
		return buf, base + ".csv", nil
	case "xlsx":
		summary := summarizeAttendance(records)
		buf, err := writeAttendanceXLSX(class.Name, rows, summary)
		if err != nil {
			s.logger.Error("写入 Excel 失败", zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}
		return buf, base + ".xlsx", nil
	default:
		return nil, "", ErrExportFormat
	}
}

func attendanceRows(records []model.AttendanceRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		name := r.StudentID
		if r.Student != nil {
			name = r.Student.Name
		}
		rows = append(rows, []string{r.Date.Format(dateLayout), safeCell(name), r.Status, safeCell(r.Notes)})
	}
	return rows
}

// safeCell 用户输入的文本以 = + - @ 或制表、回车开头时加 ' 前缀，表格软件不会将其当作公式
func safeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// writeCSV 带 UTF-8 BOM，便于 Excel 直接打开
func writeCSV(header []string, rows [][]string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	buf.WriteString("\ufeff")
	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeAttendanceXLSX(className string, rows [][]string, summary dto.AttendanceSummaryResponse) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Attendance"
	idx, _ := f.NewSheet(sheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheet, "A", "A", 12)
	f.SetColWidth(sheet, "B", "B", 24)
	f.SetColWidth(sheet, "C", "C", 10)
	f.SetColWidth(sheet, "D", "D", 40)

	headerStyle, _ := f.NewStyle(headerCellStyle())

	f.SetCellValue(sheet, "A1", className)
	f.MergeCell(sheet, "A1", "D1")
	f.SetCellStyle(sheet, "A1", "D1", headerStyle)

	writeSheetRows(f, sheet, 2, attendanceHeader, rows, headerStyle)

	// 汇总
	summarySheet := "Summary"
	f.NewSheet(summarySheet)
	pairs := [][]interface{}{
		{"Total", summary.Total},
		{"Present", summary.Present},
		{"Absent", summary.Absent},
		{"Late", summary.Late},
		{"Excused", summary.Excused},
		{"Rate %", summary.Rate},
	}
	for i, p := range pairs {
		f.SetCellValue(summarySheet, cell("A", i+1), p[0])
		f.SetCellValue(summarySheet, cell("B", i+1), p[1])
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ═══════════════════════════════════════════════════════════
// ExportExamResults 导出考试成绩
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportExamResults(ctx context.Context, examID, callerID, callerRole string) (*bytes.Buffer, string, error) {
	exam, err := s.repo.Exam.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrExamNotFound
		}
		s.logger.Error("查询考试失败", zap.String("exam_id", examID), zap.Error(err))
		return nil, "", err
	}
	if callerRole != model.RoleSuperAdmin && exam.TeacherID != callerID {
		return nil, "", ErrNotClassOwner
	}
	results, err := s.repo.ExamResult.ListByExam(ctx, examID)
	if err != nil {
		s.logger.Error("查询考试成绩失败", zap.String("exam_id", examID), zap.Error(err))
		return nil, "", err
	}

	header := []string{"Student", "Score", "Total", "Percentage", "Passed", "Time (s)", "Status", "Submitted At"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		name := r.StudentID
		if r.Student != nil {
			name = r.Student.Name
		}
		rows = append(rows, []string{
			safeCell(name),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			strconv.FormatFloat(r.TotalPoints, 'f', 2, 64),
			strconv.FormatFloat(r.Percentage, 'f', 2, 64),
			strconv.FormatBool(r.Passed),
			strconv.Itoa(r.TimeTakenSeconds),
			r.Status,
			formatTimePtr(r.SubmittedAt),
		})
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Results"
	idx, _ := f.NewSheet(sheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.SetColWidth(sheet, "A", "A", 24)
	f.SetColWidth(sheet, "B", "G", 12)
	f.SetColWidth(sheet, "H", "H", 22)

	headerStyle, _ := f.NewStyle(headerCellStyle())
	f.SetCellValue(sheet, "A1", exam.Title)
	f.MergeCell(sheet, "A1", "H1")
	f.SetCellStyle(sheet, "A1", "H1", headerStyle)
	writeSheetRows(f, sheet, 2, header, rows, headerStyle)

	stats := computeExamStats(results)
	statsRow := len(rows) + 4
	f.SetCellValue(sheet, cell("A", statsRow), "Average")
	f.SetCellValue(sheet, cell("B", statsRow), stats.Average)
	f.SetCellValue(sheet, cell("A", statsRow+1), "Pass rate %")
	f.SetCellValue(sheet, cell("B", statsRow+1), stats.PassRate)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("results_%s.xlsx", exam.Title), nil
}

// ═══════════════════════════════════════════════════════════
// ResultReportPDF 成绩单
// ═══════════════════════════════════════════════════════════
//
// 可查看者：学生本人、关联家长、出题教师、超级管理员

func (s *exportService) ResultReportPDF(ctx context.Context, resultID, callerID, callerRole string) (*bytes.Buffer, string, error) {
	result, err := s.repo.ExamResult.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrExamResultNotFound
		}
		s.logger.Error("查询成绩失败", zap.String("result_id", resultID), zap.Error(err))
		return nil, "", err
	}
	if result.Exam == nil || result.Student == nil {
		return nil, "", ErrExamResultNotFound
	}

	switch {
	case callerRole == model.RoleSuperAdmin:
	case callerID == result.StudentID:
	case callerRole == model.RoleTeacher && result.Exam.TeacherID == callerID:
	case callerRole == model.RoleParent && result.Student.ParentID != nil && *result.Student.ParentID == callerID:
	default:
		return nil, "", ErrNoPermission
	}
	if result.Status != model.ResultSubmitted {
		return nil, "", ErrResultNotSubmitted
	}

	buf, err := renderResultPDF(result)
	if err != nil {
		s.logger.Error("生成成绩单失败", zap.String("result_id", resultID), zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("report_%s.pdf", result.ResultID), nil
}

func renderResultPDF(r *model.ExamResult) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Exam Report", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Exam Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	className := ""
	if r.Exam.Class != nil {
		className = r.Exam.Class.Name
	}
	passed := "No"
	if r.Passed {
		passed = "Yes"
	}
	lines := [][2]string{
		{"Student", r.Student.Name},
		{"Class", className},
		{"Exam", r.Exam.Title},
		{"Score", fmt.Sprintf("%.2f / %.2f", r.Score, r.TotalPoints)},
		{"Percentage", fmt.Sprintf("%.2f%%", r.Percentage)},
		{"Pass mark", fmt.Sprintf("%.2f%%", r.Exam.PassPercentage)},
		{"Passed", passed},
		{"Time taken", fmt.Sprintf("%dm %ds", r.TimeTakenSeconds/60, r.TimeTakenSeconds%60)},
		{"Submitted at", formatTimePtr(r.SubmittedAt)},
	}

	for _, l := range lines {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(50, 9, l[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 9, tr(l[1]), "1", 1, "L", false, 0, "")
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ── 辅助函数 ──

func headerCellStyle() *excelize.Style {
	return &excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}
}

// writeSheetRows 从 startRow 写表头与数据行
func writeSheetRows(f *excelize.File, sheet string, startRow int, header []string, rows [][]string, headerStyle int) {
	for i, h := range header {
		f.SetCellValue(sheet, cell(colName(i), startRow), h)
	}
	f.SetCellStyle(sheet, cell("A", startRow), cell(colName(len(header)-1), startRow), headerStyle)
	for r, row := range rows {
		for c, v := range row {
			f.SetCellValue(sheet, cell(colName(c), startRow+1+r), v)
		}
	}
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
