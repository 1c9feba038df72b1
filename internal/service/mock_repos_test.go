package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
	"github.com/mohamed66886/sehaty-sub000/pkg/realtime"
)

var mockSeq int

func nextID(prefix string) string {
	mockSeq++
	return fmt.Sprintf("%s-%d", prefix, mockSeq)
}

// mockRepos 一组内存仓储，共享用户与班级数据以模拟 Preload
type mockRepos struct {
	users       *mockUserRepo
	classes     *mockClassRepo
	codes       *mockClassCodeRepo
	attendance  *mockAttendanceRepo
	homework    *mockHomeworkRepo
	submissions *mockSubmissionRepo
	exams       *mockExamRepo
	results     *mockExamResultRepo
	schedules   *mockScheduleRepo
	messages    *mockMessageRepo
}

func newMockRepos() (*mockRepos, *repository.Repository) {
	m := &mockRepos{}
	m.classes = &mockClassRepo{classes: make(map[string]*model.Class)}
	m.users = &mockUserRepo{users: make(map[string]*model.User), classes: m.classes}
	m.classes.users = m.users
	m.codes = &mockClassCodeRepo{}
	m.attendance = &mockAttendanceRepo{records: make(map[string]*model.AttendanceRecord), users: m.users}
	m.homework = &mockHomeworkRepo{items: make(map[string]*model.Homework), classes: m.classes}
	m.submissions = &mockSubmissionRepo{items: make(map[string]*model.HomeworkSubmission), users: m.users}
	m.exams = &mockExamRepo{items: make(map[string]*model.Exam), classes: m.classes}
	m.results = &mockExamResultRepo{items: make(map[string]*model.ExamResult), users: m.users, exams: m.exams}
	m.schedules = &mockScheduleRepo{days: make(map[string]*model.ScheduleDay)}
	m.messages = &mockMessageRepo{items: make(map[string]*model.Message), users: m.users}

	repo := &repository.Repository{
		User:       m.users,
		Class:      m.classes,
		ClassCode:  m.codes,
		Attendance: m.attendance,
		Homework:   m.homework,
		Submission: m.submissions,
		Exam:       m.exams,
		ExamResult: m.results,
		Schedule:   m.schedules,
		Message:    m.messages,
	}
	return m, repo
}

// ── fixtures ──

func (m *mockRepos) addUser(id, name, role string) *model.User {
	u := &model.User{UserID: id, Name: name, Email: id + "@test.com", Role: role, IsActive: true, NotifyEmail: true, Language: "ar"}
	m.users.users[id] = u
	return u
}

func (m *mockRepos) addClass(id, name, teacherID string) *model.Class {
	c := &model.Class{ClassID: id, Name: name, TeacherID: teacherID}
	m.classes.classes[id] = c
	return c
}

func (m *mockRepos) enroll(studentID, classID string) {
	cid := classID
	m.users.users[studentID].ClassID = &cid
}

func (m *mockRepos) linkParent(studentID, parentID string) {
	pid := parentID
	m.users.users[studentID].ParentID = &pid
}

// ── Mock UserRepository ──

type mockUserRepo struct {
	users   map[string]*model.User
	classes *mockClassRepo
}

func (m *mockUserRepo) withClass(u *model.User) *model.User {
	if u.ClassID != nil && m.classes != nil {
		u.Class = m.classes.classes[*u.ClassID]
	}
	return u
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		user.UserID = nextID("user")
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	user.Version = 1
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return m.withClass(u), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return m.withClass(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	user.Version++
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter repository.UserFilter, offset, limit int) ([]model.User, int64, error) {
	var all []model.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ClassID != "" && (u.ClassID == nil || *u.ClassID != filter.ClassID) {
			continue
		}
		if filter.Keyword != "" && !strings.Contains(u.Name, filter.Keyword) && !strings.Contains(u.Email, filter.Keyword) {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockUserRepo) ListStudentsByClass(_ context.Context, classID string) ([]model.User, error) {
	var out []model.User
	for _, u := range m.users {
		if u.Role == model.RoleStudent && u.ClassID != nil && *u.ClassID == classID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockUserRepo) ListChildren(_ context.Context, parentID string) ([]model.User, error) {
	var out []model.User
	for _, u := range m.users {
		if u.Role == model.RoleStudent && u.ParentID != nil && *u.ParentID == parentID {
			out = append(out, *m.withClass(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockUserRepo) CountByRole(_ context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, u := range m.users {
		out[u.Role]++
	}
	return out, nil
}

func (m *mockUserRepo) CountStudentsByClasses(_ context.Context, classIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(classIDs))
	for _, id := range classIDs {
		for _, u := range m.users {
			if u.Role == model.RoleStudent && u.ClassID != nil && *u.ClassID == id {
				out[id]++
			}
		}
	}
	return out, nil
}

// ── Mock ClassRepository ──

type mockClassRepo struct {
	classes map[string]*model.Class
	users   *mockUserRepo
}

func (m *mockClassRepo) Create(_ context.Context, class *model.Class) error {
	if class.ClassID == "" {
		class.ClassID = nextID("class")
	}
	class.Version = 1
	m.classes[class.ClassID] = class
	return nil
}

func (m *mockClassRepo) GetByID(_ context.Context, id string) (*model.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if m.users != nil {
		c.Teacher = m.users.users[c.TeacherID]
	}
	return c, nil
}

func (m *mockClassRepo) Update(_ context.Context, class *model.Class) error {
	class.Version++
	m.classes[class.ClassID] = class
	return nil
}

func (m *mockClassRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.classes, id)
	return nil
}

func (m *mockClassRepo) ListByTeacher(_ context.Context, teacherID string) ([]model.Class, error) {
	var out []model.Class
	for _, c := range m.classes {
		if c.TeacherID == teacherID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockClassRepo) ListAll(_ context.Context) ([]model.Class, error) {
	var out []model.Class
	for _, c := range m.classes {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockClassRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.classes)), nil
}

// ── Mock ClassCodeRepository ──

type mockClassCodeRepo struct {
	codes []*model.ClassCode
}

func (m *mockClassCodeRepo) Create(_ context.Context, code *model.ClassCode) error {
	for _, c := range m.codes {
		if c.IsActive && c.Code == code.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	if code.ClassCodeID == "" {
		code.ClassCodeID = nextID("code")
	}
	m.codes = append(m.codes, code)
	return nil
}

func (m *mockClassCodeRepo) GetActiveByCode(_ context.Context, code string) (*model.ClassCode, error) {
	for _, c := range m.codes {
		if c.IsActive && c.Code == code {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClassCodeRepo) GetActiveByClass(_ context.Context, classID string) (*model.ClassCode, error) {
	for _, c := range m.codes {
		if c.IsActive && c.ClassID == classID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClassCodeRepo) DeactivateByClass(_ context.Context, classID, _ string) error {
	for _, c := range m.codes {
		if c.ClassID == classID {
			c.IsActive = false
		}
	}
	return nil
}

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	records map[string]*model.AttendanceRecord
	users   *mockUserRepo
}

func attendanceKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (m *mockAttendanceRepo) Upsert(_ context.Context, records []model.AttendanceRecord) error {
	for i := range records {
		r := records[i]
		key := attendanceKey(r.StudentID, r.Date)
		if existing, ok := m.records[key]; ok {
			r.RecordID = existing.RecordID
		} else {
			r.RecordID = nextID("att")
		}
		m.records[key] = &r
	}
	return nil
}

func (m *mockAttendanceRepo) find(id string) (string, *model.AttendanceRecord) {
	for k, r := range m.records {
		if r.RecordID == id {
			return k, r
		}
	}
	return "", nil
}

func (m *mockAttendanceRepo) GetByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	if _, r := m.find(id); r != nil {
		r.Student = m.users.users[r.StudentID]
		return r, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceRepo) Update(_ context.Context, record *model.AttendanceRecord) error {
	k, r := m.find(record.RecordID)
	if r == nil {
		return gorm.ErrRecordNotFound
	}
	m.records[k] = record
	return nil
}

func (m *mockAttendanceRepo) Delete(_ context.Context, id string) error {
	if k, r := m.find(id); r != nil {
		delete(m.records, k)
	}
	return nil
}

func (m *mockAttendanceRepo) List(_ context.Context, f repository.AttendanceFilter) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, r := range m.records {
		if f.ClassID != "" && r.ClassID != f.ClassID {
			continue
		}
		if f.StudentID != "" && r.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.From != nil && r.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && r.Date.After(*f.To) {
			continue
		}
		rec := *r
		rec.Student = m.users.users[r.StudentID]
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func (m *mockAttendanceRepo) DeleteByClassAndDate(_ context.Context, classID string, date time.Time) (int64, error) {
	var n int64
	for k, r := range m.records {
		if r.ClassID == classID && r.Date.Equal(date) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// ── Mock HomeworkRepository ──

type mockHomeworkRepo struct {
	items   map[string]*model.Homework
	classes *mockClassRepo
}

func (m *mockHomeworkRepo) Create(_ context.Context, hw *model.Homework) error {
	if hw.HomeworkID == "" {
		hw.HomeworkID = nextID("hw")
	}
	hw.Version = 1
	m.items[hw.HomeworkID] = hw
	return nil
}

func (m *mockHomeworkRepo) GetByID(_ context.Context, id string) (*model.Homework, error) {
	hw, ok := m.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	hw.Class = m.classes.classes[hw.ClassID]
	return hw, nil
}

func (m *mockHomeworkRepo) Update(_ context.Context, hw *model.Homework) error {
	hw.Version++
	m.items[hw.HomeworkID] = hw
	return nil
}

func (m *mockHomeworkRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.items, id)
	return nil
}

func (m *mockHomeworkRepo) List(_ context.Context, f repository.HomeworkFilter, offset, limit int) ([]model.Homework, int64, error) {
	var all []model.Homework
	for _, hw := range m.items {
		if f.TeacherID != "" && hw.TeacherID != f.TeacherID {
			continue
		}
		if f.ClassIDs != nil && !containsString(f.ClassIDs, hw.ClassID) {
			continue
		}
		all = append(all, *hw)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Deadline.After(all[j].Deadline) })
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockHomeworkRepo) ListDeadlineBetween(_ context.Context, from, to time.Time) ([]model.Homework, error) {
	var out []model.Homework
	for _, hw := range m.items {
		if hw.Deadline.After(from) && !hw.Deadline.After(to) {
			out = append(out, *hw)
		}
	}
	return out, nil
}

func (m *mockHomeworkRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.items)), nil
}

// ── Mock SubmissionRepository ──

type mockSubmissionRepo struct {
	items map[string]*model.HomeworkSubmission
	users *mockUserRepo
}

func (m *mockSubmissionRepo) Create(_ context.Context, sub *model.HomeworkSubmission) error {
	for _, s := range m.items {
		if s.HomeworkID == sub.HomeworkID && s.StudentID == sub.StudentID {
			return gorm.ErrDuplicatedKey
		}
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = nextID("sub")
	}
	m.items[sub.SubmissionID] = sub
	return nil
}

func (m *mockSubmissionRepo) GetByID(_ context.Context, id string) (*model.HomeworkSubmission, error) {
	if s, ok := m.items[id]; ok {
		s.Student = m.users.users[s.StudentID]
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSubmissionRepo) GetByHomeworkAndStudent(_ context.Context, homeworkID, studentID string) (*model.HomeworkSubmission, error) {
	for _, s := range m.items {
		if s.HomeworkID == homeworkID && s.StudentID == studentID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSubmissionRepo) Update(_ context.Context, sub *model.HomeworkSubmission) error {
	m.items[sub.SubmissionID] = sub
	return nil
}

func (m *mockSubmissionRepo) ListByHomework(_ context.Context, homeworkID string) ([]model.HomeworkSubmission, error) {
	var out []model.HomeworkSubmission
	for _, s := range m.items {
		if s.HomeworkID == homeworkID {
			cp := *s
			cp.Student = m.users.users[s.StudentID]
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *mockSubmissionRepo) ListByStudent(_ context.Context, studentID string, homeworkIDs []string) ([]model.HomeworkSubmission, error) {
	var out []model.HomeworkSubmission
	for _, s := range m.items {
		if s.StudentID == studentID && containsString(homeworkIDs, s.HomeworkID) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSubmissionRepo) CreateMissing(ctx context.Context, subs []model.HomeworkSubmission) (int64, error) {
	var n int64
	for i := range subs {
		sub := subs[i]
		if err := m.Create(ctx, &sub); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *mockSubmissionRepo) CountUngradedByTeacher(_ context.Context, _ string) (int64, error) {
	var n int64
	for _, s := range m.items {
		if s.Status == model.SubmissionSubmitted || s.Status == model.SubmissionLate {
			n++
		}
	}
	return n, nil
}

// ── Mock ExamRepository ──

type mockExamRepo struct {
	items   map[string]*model.Exam
	classes *mockClassRepo
}

func (m *mockExamRepo) Create(_ context.Context, exam *model.Exam) error {
	if exam.ExamID == "" {
		exam.ExamID = nextID("exam")
	}
	exam.Version = 1
	m.items[exam.ExamID] = exam
	return nil
}

func (m *mockExamRepo) GetByID(_ context.Context, id string) (*model.Exam, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	e.Class = m.classes.classes[e.ClassID]
	return e, nil
}

func (m *mockExamRepo) Update(_ context.Context, exam *model.Exam) error {
	exam.Version++
	m.items[exam.ExamID] = exam
	return nil
}

func (m *mockExamRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.items, id)
	return nil
}

func (m *mockExamRepo) List(_ context.Context, f repository.ExamFilter, offset, limit int) ([]model.Exam, int64, error) {
	var all []model.Exam
	for _, e := range m.items {
		if f.TeacherID != "" && e.TeacherID != f.TeacherID {
			continue
		}
		if f.ClassIDs != nil && !containsString(f.ClassIDs, e.ClassID) {
			continue
		}
		if f.PublishedOnly && !e.IsPublished {
			continue
		}
		all = append(all, *e)
	}
	total := int64(len(all))
	if offset > len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockExamRepo) ListUpcoming(_ context.Context, teacherID string, now time.Time, limit int) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range m.items {
		if e.TeacherID == teacherID && e.EndAt.After(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockExamRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.items)), nil
}

// ── Mock ExamResultRepository ──

type mockExamResultRepo struct {
	items map[string]*model.ExamResult
	users *mockUserRepo
	exams *mockExamRepo
}

func (m *mockExamResultRepo) Create(_ context.Context, result *model.ExamResult) error {
	for _, r := range m.items {
		if r.ExamID == result.ExamID && r.StudentID == result.StudentID {
			return gorm.ErrDuplicatedKey
		}
	}
	if result.ResultID == "" {
		result.ResultID = nextID("result")
	}
	m.items[result.ResultID] = result
	return nil
}

func (m *mockExamResultRepo) GetByID(_ context.Context, id string) (*model.ExamResult, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r.Student = m.users.users[r.StudentID]
	if e, err := m.exams.GetByID(context.Background(), r.ExamID); err == nil {
		r.Exam = e
	}
	return r, nil
}

func (m *mockExamResultRepo) GetByExamAndStudent(_ context.Context, examID, studentID string) (*model.ExamResult, error) {
	for _, r := range m.items {
		if r.ExamID == examID && r.StudentID == studentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockExamResultRepo) Submit(_ context.Context, result *model.ExamResult) error {
	stored, ok := m.items[result.ResultID]
	if !ok || stored.Status != model.ResultInProgress {
		return pkgerrors.ErrOptimisticLock
	}
	result.Status = model.ResultSubmitted
	cp := *result
	m.items[result.ResultID] = &cp
	return nil
}

func (m *mockExamResultRepo) ListByExam(_ context.Context, examID string) ([]model.ExamResult, error) {
	var out []model.ExamResult
	for _, r := range m.items {
		if r.ExamID == examID {
			cp := *r
			cp.Student = m.users.users[r.StudentID]
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out, nil
}

func (m *mockExamResultRepo) ListByStudent(_ context.Context, studentID string, _, _ int) ([]model.ExamResult, int64, error) {
	var out []model.ExamResult
	for _, r := range m.items {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockExamResultRepo) LatestSubmittedByStudent(_ context.Context, studentID string) (*model.ExamResult, error) {
	var latest *model.ExamResult
	for _, r := range m.items {
		if r.StudentID != studentID || r.Status != model.ResultSubmitted || r.SubmittedAt == nil {
			continue
		}
		if latest == nil || r.SubmittedAt.After(*latest.SubmittedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	latest.Exam = m.exams.items[latest.ExamID]
	return latest, nil
}

// ── Mock ScheduleRepository ──

type mockScheduleRepo struct {
	days map[string]*model.ScheduleDay
}

func scheduleKey(teacherID string, day int) string {
	return fmt.Sprintf("%s|%d", teacherID, day)
}

func (m *mockScheduleRepo) Create(_ context.Context, day *model.ScheduleDay) error {
	key := scheduleKey(day.TeacherID, day.DayOfWeek)
	if _, ok := m.days[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	if day.ScheduleDayID == "" {
		day.ScheduleDayID = nextID("day")
	}
	day.Version = 1
	m.days[key] = day
	return nil
}

func (m *mockScheduleRepo) GetByTeacherAndDay(_ context.Context, teacherID string, dayOfWeek int) (*model.ScheduleDay, error) {
	if d, ok := m.days[scheduleKey(teacherID, dayOfWeek)]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScheduleRepo) ListByTeacher(_ context.Context, teacherID string) ([]model.ScheduleDay, error) {
	var out []model.ScheduleDay
	for _, d := range m.days {
		if d.TeacherID == teacherID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (m *mockScheduleRepo) Update(_ context.Context, day *model.ScheduleDay) error {
	key := scheduleKey(day.TeacherID, day.DayOfWeek)
	stored, ok := m.days[key]
	if !ok || stored.Version != day.Version {
		return pkgerrors.ErrOptimisticLock
	}
	day.Version++
	cp := *day
	m.days[key] = &cp
	return nil
}

// ── Mock MessageRepository ──

type mockMessageRepo struct {
	items map[string]*model.Message
	users *mockUserRepo
}

func (m *mockMessageRepo) Create(_ context.Context, msg *model.Message) error {
	if msg.MessageID == "" {
		msg.MessageID = nextID("msg")
	}
	msg.CreatedAt = time.Now()
	m.items[msg.MessageID] = msg
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id string) (*model.Message, error) {
	msg, ok := m.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	msg.Sender = m.users.users[msg.SenderID]
	msg.Recipient = m.users.users[msg.RecipientID]
	return msg, nil
}

func (m *mockMessageRepo) list(keep func(*model.Message) bool) ([]model.Message, int64, error) {
	var out []model.Message
	for _, msg := range m.items {
		if keep(msg) {
			out = append(out, *msg)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockMessageRepo) ListInbox(_ context.Context, userID string, unreadOnly bool, _, _ int) ([]model.Message, int64, error) {
	return m.list(func(msg *model.Message) bool {
		return msg.RecipientID == userID && (!unreadOnly || !msg.IsRead)
	})
}

func (m *mockMessageRepo) ListSent(_ context.Context, userID string, _, _ int) ([]model.Message, int64, error) {
	return m.list(func(msg *model.Message) bool { return msg.SenderID == userID })
}

func (m *mockMessageRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	_, n, err := m.list(func(msg *model.Message) bool { return msg.RecipientID == userID && !msg.IsRead })
	return n, err
}

func (m *mockMessageRepo) MarkRead(_ context.Context, id string, at time.Time) error {
	if msg, ok := m.items[id]; ok && !msg.IsRead {
		msg.IsRead = true
		msg.ReadAt = &at
	}
	return nil
}

func (m *mockMessageRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.items, id)
	return nil
}

// ── 基础设施 fakes ──

type fakeTokenStore struct {
	blacklisted map[string]bool
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{blacklisted: make(map[string]bool)}
}

func (f *fakeTokenStore) BlacklistToken(_ context.Context, jti string, _ time.Duration) error {
	f.blacklisted[jti] = true
	return nil
}

func (f *fakeTokenStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	return f.blacklisted[jti], nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) AcquireLock(_ context.Context, name string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[name] {
		return nil, pkgerrors.ErrLockHeld
	}
	f.held[name] = true
	return func() {
		f.mu.Lock()
		delete(f.held, name)
		f.mu.Unlock()
	}, nil
}

type fakePublisher struct {
	events map[string][]realtime.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(map[string][]realtime.Event)}
}

func (f *fakePublisher) Publish(userID string, event realtime.Event) {
	f.events[userID] = append(f.events[userID], event)
}

type fakeStorage struct {
	objects map[string][]byte
	failPut bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if f.failPut {
		return "", fmt.Errorf("storage unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	return f.URL(key), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) URL(key string) string {
	return "http://files.test/" + key
}

func newUpload(name, content string) Upload {
	return Upload{Name: name, Size: int64(len(content)), ContentType: "text/plain", Reader: bytes.NewReader([]byte(content))}
}

var _ mailer.Mailer = (*mailer.Console)(nil)

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
