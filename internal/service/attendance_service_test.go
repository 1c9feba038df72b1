package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
)

func setupTestAttendanceService(digest string) (AttendanceService, *mockRepos, *mailer.Console) {
	cfg := testConfig()
	cfg.Feature.AbsenceMail = true
	cfg.Job.AbsenceDigest = digest
	mocks, repo := newMockRepos()
	mail := mailer.NewConsole(zap.NewNop())

	mocks.addUser("t1", "王老师", model.RoleTeacher)
	mocks.addUser("t2", "李老师", model.RoleTeacher)
	mocks.addClass("c1", "一班", "t1")
	mocks.addUser("p1", "家长", model.RoleParent)
	for _, id := range []string{"s1", "s2", "s3"} {
		mocks.addUser(id, "学生"+id, model.RoleStudent)
		mocks.enroll(id, "c1")
	}
	mocks.linkParent("s1", "p1")
	mocks.linkParent("s2", "p1")
	mocks.addUser("s9", "外班学生", model.RoleStudent)

	svc := NewAttendanceService(cfg, repo, mail, zap.NewNop()).(*attendanceService)
	svc.now = func() time.Time { return attendanceNow }
	return svc, mocks, mail
}

// attendanceNow 固定“今天”，使缺省日期范围覆盖 2025-03 的测试数据
var attendanceNow = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

func markReq(date string, entries ...dto.AttendanceEntry) *dto.MarkAttendanceRequest {
	return &dto.MarkAttendanceRequest{ClassID: "c1", Date: date, Entries: entries}
}

func entry(studentID, status string) dto.AttendanceEntry {
	return dto.AttendanceEntry{StudentID: studentID, Status: status}
}

func TestAttendance_Mark_CreatesThenUpdates(t *testing.T) {
	svc, mocks, _ := setupTestAttendanceService("0 0 18 * * *")
	ctx := context.Background()

	resp, err := svc.Mark(ctx, markReq("2025-03-02",
		entry("s1", model.AttendancePresent),
		entry("s2", model.AttendanceAbsent),
	), "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Mark 应成功: %v", err)
	}
	if resp.Created != 2 || resp.Updated != 0 || resp.Absent != 1 {
		t.Errorf("首次录入计数不正确: %+v", resp)
	}

	resp, err = svc.Mark(ctx, markReq("2025-03-02",
		entry("s2", model.AttendanceLate),
		entry("s3", model.AttendancePresent),
	), "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("再次 Mark 应成功: %v", err)
	}
	if resp.Created != 1 || resp.Updated != 1 || resp.Absent != 0 {
		t.Errorf("再次录入计数不正确: %+v", resp)
	}
	if len(mocks.attendance.records) != 3 {
		t.Errorf("同一学生同一天只应有 1 条记录，实际共 %d 条", len(mocks.attendance.records))
	}
}

func TestAttendance_Mark_DuplicateEntryLastWins(t *testing.T) {
	svc, mocks, _ := setupTestAttendanceService("0 0 18 * * *")

	resp, err := svc.Mark(context.Background(), markReq("2025-03-02",
		entry("s1", model.AttendanceAbsent),
		entry("s1", model.AttendancePresent),
	), "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Mark 应成功: %v", err)
	}
	if resp.Created != 1 || resp.Absent != 0 {
		t.Errorf("重复条目应合并为最后一条: %+v", resp)
	}
	for _, r := range mocks.attendance.records {
		if r.Status != model.AttendancePresent {
			t.Errorf("期望状态 present，实际=%s", r.Status)
		}
	}
}

func TestAttendance_Mark_StudentNotInClass(t *testing.T) {
	svc, mocks, _ := setupTestAttendanceService("")

	_, err := svc.Mark(context.Background(), markReq("2025-03-02",
		entry("s1", model.AttendancePresent),
		entry("s9", model.AttendancePresent),
	), "t1", model.RoleTeacher)
	if !errors.Is(err, ErrStudentNotInClass) {
		t.Errorf("期望 ErrStudentNotInClass，实际: %v", err)
	}
	if len(mocks.attendance.records) != 0 {
		t.Error("校验失败时不应写入任何记录")
	}
}

func TestAttendance_Mark_NotOwner(t *testing.T) {
	svc, _, _ := setupTestAttendanceService("")
	_, err := svc.Mark(context.Background(), markReq("2025-03-02", entry("s1", model.AttendancePresent)), "t2", model.RoleTeacher)
	if !errors.Is(err, ErrNotClassOwner) {
		t.Errorf("期望 ErrNotClassOwner，实际: %v", err)
	}
}

func TestAttendance_Mark_ImmediateNoticeWithoutDigest(t *testing.T) {
	svc, _, mail := setupTestAttendanceService("")

	_, err := svc.Mark(context.Background(), markReq("2025-03-02",
		entry("s1", model.AttendanceAbsent),
		entry("s3", model.AttendanceAbsent),
	), "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Mark 应成功: %v", err)
	}
	// s3 没有关联家长
	if n := len(mail.Sent()); n != 1 {
		t.Errorf("期望发送 1 封即时缺勤通知，实际=%d", n)
	}
}

func TestAttendance_Mark_NoImmediateNoticeWithDigest(t *testing.T) {
	svc, _, mail := setupTestAttendanceService("0 0 18 * * *")

	if _, err := svc.Mark(context.Background(), markReq("2025-03-02", entry("s1", model.AttendanceAbsent)), "t1", model.RoleTeacher); err != nil {
		t.Fatalf("Mark 应成功: %v", err)
	}
	if n := len(mail.Sent()); n != 0 {
		t.Errorf("启用每日汇总时不应即时发送，实际=%d", n)
	}
}

func TestAttendance_SendAbsenceDigest_OneMailPerParent(t *testing.T) {
	svc, _, mail := setupTestAttendanceService("0 0 18 * * *")
	ctx := context.Background()
	_, _ = svc.Mark(ctx, markReq("2025-03-02",
		entry("s1", model.AttendanceAbsent),
		entry("s2", model.AttendanceAbsent),
		entry("s3", model.AttendancePresent),
	), "t1", model.RoleTeacher)

	sent, err := svc.SendAbsenceDigest(ctx, time.Date(2025, 3, 2, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SendAbsenceDigest 应成功: %v", err)
	}
	if sent != 1 || len(mail.Sent()) != 1 {
		t.Errorf("两名子女缺勤应只给家长发 1 封，实际 sent=%d", sent)
	}
}

func TestAttendance_DailyAndSummary(t *testing.T) {
	svc, _, _ := setupTestAttendanceService("0 0 18 * * *")
	ctx := context.Background()
	_, _ = svc.Mark(ctx, markReq("2025-03-01", entry("s1", model.AttendancePresent), entry("s2", model.AttendanceLate)), "t1", model.RoleTeacher)
	_, _ = svc.Mark(ctx, markReq("2025-03-02", entry("s1", model.AttendanceAbsent), entry("s2", model.AttendanceExcused)), "t1", model.RoleTeacher)

	days, err := svc.Daily(ctx, &dto.AttendanceQuery{ClassID: "c1"}, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Daily 应成功: %v", err)
	}
	if len(days) != 2 || days[0].Date != "2025-03-02" {
		t.Fatalf("期望两天且最新在前，实际=%+v", days)
	}

	summary, err := svc.Summary(ctx, &dto.AttendanceQuery{ClassID: "c1"}, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Summary 应成功: %v", err)
	}
	if summary.Total != 4 || summary.Rate != 50 {
		t.Errorf("期望 Total=4 Rate=50，实际 Total=%d Rate=%v", summary.Total, summary.Rate)
	}

	filtered, _ := svc.List(ctx, &dto.AttendanceQuery{ClassID: "c1", From: "2025-03-02", To: "2025-03-02"}, "t1", model.RoleTeacher)
	if len(filtered) != 2 {
		t.Errorf("日期过滤后期望 2 条，实际=%d", len(filtered))
	}
}

func TestAttendance_UpdateAndDeleteByDate(t *testing.T) {
	svc, mocks, _ := setupTestAttendanceService("0 0 18 * * *")
	ctx := context.Background()
	_, _ = svc.Mark(ctx, markReq("2025-03-02", entry("s1", model.AttendanceAbsent), entry("s2", model.AttendancePresent)), "t1", model.RoleTeacher)

	var id string
	for _, r := range mocks.attendance.records {
		if r.StudentID == "s1" {
			id = r.RecordID
		}
	}
	status := model.AttendanceExcused
	resp, err := svc.Update(ctx, id, &dto.UpdateAttendanceRequest{Status: &status}, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if resp.Status != model.AttendanceExcused {
		t.Errorf("期望状态 excused，实际=%s", resp.Status)
	}
	if _, err := svc.Update(ctx, id, &dto.UpdateAttendanceRequest{Status: &status}, "t2", model.RoleTeacher); !errors.Is(err, ErrNotClassOwner) {
		t.Errorf("期望 ErrNotClassOwner，实际: %v", err)
	}

	deleted, err := svc.DeleteByDate(ctx, &dto.DeleteAttendanceByDateQuery{ClassID: "c1", Date: "2025-03-02"}, "t1", model.RoleTeacher)
	if err != nil {
		t.Fatalf("DeleteByDate 应成功: %v", err)
	}
	if deleted.Deleted != 2 {
		t.Errorf("期望删除 2 条，实际=%d", deleted.Deleted)
	}
	if err := svc.Delete(ctx, id, "t1", model.RoleTeacher); !errors.Is(err, ErrAttendanceNotFound) {
		t.Errorf("期望 ErrAttendanceNotFound，实际: %v", err)
	}
}

func TestAttendance_StudentHistory_Permissions(t *testing.T) {
	svc, _, _ := setupTestAttendanceService("0 0 18 * * *")
	ctx := context.Background()

	tests := []struct {
		name       string
		callerID   string
		callerRole string
		wantErr    error
	}{
		{"本人", "s1", model.RoleStudent, nil},
		{"关联家长", "p1", model.RoleParent, nil},
		{"班主任", "t1", model.RoleTeacher, nil},
		{"超级管理员", "admin", model.RoleSuperAdmin, nil},
		{"其他教师", "t2", model.RoleTeacher, ErrNoPermission},
		{"其他学生", "s2", model.RoleStudent, ErrNoPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StudentHistory(ctx, "s1", "", "", tt.callerID, tt.callerRole)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("期望 %v，实际: %v", tt.wantErr, err)
			}
		})
	}

	if _, err := svc.StudentHistory(ctx, "t1", "", "", "admin", model.RoleSuperAdmin); !errors.Is(err, ErrNotStudent) {
		t.Errorf("期望 ErrNotStudent，实际: %v", err)
	}
}

// ── 纯函数 ──

func TestGroupAttendanceByDay(t *testing.T) {
	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	records := []model.AttendanceRecord{
		{StudentID: "a", Date: d1, Status: model.AttendancePresent},
		{StudentID: "b", Date: d2, Status: model.AttendanceAbsent},
		{StudentID: "c", Date: d1, Status: model.AttendanceLate},
	}

	days := groupAttendanceByDay(records)
	if len(days) != 2 {
		t.Fatalf("期望 2 天，实际=%d", len(days))
	}
	if days[0].Date != "2025-03-03" || days[1].Date != "2025-03-01" {
		t.Errorf("日期应倒序，实际=%s,%s", days[0].Date, days[1].Date)
	}
	if days[1].Counts.Present != 1 || days[1].Counts.Late != 1 || days[1].Counts.Total != 2 {
		t.Errorf("3-01 计数不正确: %+v", days[1].Counts)
	}
}

func TestAttendanceRate(t *testing.T) {
	tests := []struct {
		c    dto.AttendanceCounts
		want float64
	}{
		{dto.AttendanceCounts{}, 0},
		{dto.AttendanceCounts{Total: 3, Present: 1, Late: 1, Absent: 1}, 66.67},
		{dto.AttendanceCounts{Total: 4, Present: 4}, 100},
		{dto.AttendanceCounts{Total: 2, Excused: 2}, 0},
	}
	for _, tt := range tests {
		if got := attendanceRate(tt.c); got != tt.want {
			t.Errorf("attendanceRate(%+v) = %v，期望 %v", tt.c, got, tt.want)
		}
	}
}

func TestParseDateRange(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	day := func(s string) time.Time {
		d, _ := time.Parse(dateLayout, s)
		return d
	}
	tests := []struct {
		from, to         string
		wantFrom, wantTo string
		wantErr          error
	}{
		{"", "", "2024-06-15", "2025-06-15", nil},
		{"2025-01-01", "", "2025-01-01", "2025-06-15", nil},
		{"", "2025-03-01", "2024-03-01", "2025-03-01", nil},
		{"2025-09-01", "", "2025-09-01", "2026-09-01", nil},
		{"2025-01-01", "2025-12-31", "2025-01-01", "2025-12-31", nil},
		{"2024-01-01", "2024-12-31", "2024-01-01", "2024-12-31", nil},
		{"2024-01-01", "2025-01-01", "", "", ErrDateRangeTooLarge},
		{"2000-01-01", "", "", "", ErrDateRangeTooLarge},
		{"2025-02-01", "2025-01-01", "", "", ErrInvalidDateRange},
		{"2024-01-01", "2025-06-01", "", "", ErrDateRangeTooLarge},
		{"2025/01/01", "", "", "", ErrInvalidDate},
		{"", "2025-13-01", "", "", ErrInvalidDate},
	}
	for _, tt := range tests {
		from, to, err := parseDateRange(tt.from, tt.to, today)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("parseDateRange(%q,%q) 期望 %v，实际 %v", tt.from, tt.to, tt.wantErr, err)
			continue
		}
		if tt.wantErr != nil {
			continue
		}
		if from == nil || to == nil {
			t.Errorf("parseDateRange(%q,%q) 应补全两端", tt.from, tt.to)
			continue
		}
		if !from.Equal(day(tt.wantFrom)) || !to.Equal(day(tt.wantTo)) {
			t.Errorf("parseDateRange(%q,%q) = [%s, %s]，期望 [%s, %s]", tt.from, tt.to,
				from.Format(dateLayout), to.Format(dateLayout), tt.wantFrom, tt.wantTo)
		}
		if days := int(to.Sub(*from)/(24*time.Hour)) + 1; days > maxAttendanceRangeDays {
			t.Errorf("parseDateRange(%q,%q) 跨度 %d 天超过上限", tt.from, tt.to, days)
		}
	}
}
