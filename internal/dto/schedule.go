package dto

// ── 课表模块 DTO ──

// SlotRequest 新增/修改课程时段
type SlotRequest struct {
	ClassID   *string `json:"class_id"   binding:"omitempty,uuid"`
	ClassName string  `json:"class_name" binding:"omitempty,max=50"`
	Subject   string  `json:"subject"    binding:"required,max=50"`
	StartTime string  `json:"start_time" binding:"required,hhmm"`
	EndTime   string  `json:"end_time"   binding:"required,hhmm"`
	Room      string  `json:"room"       binding:"omitempty,max=50"`
}

// SlotResponse 课程时段
type SlotResponse struct {
	ID        string  `json:"id"`
	ClassID   *string `json:"class_id,omitempty"`
	ClassName string  `json:"class_name"`
	Subject   string  `json:"subject"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Room      string  `json:"room"`
}

// ScheduleDayResponse 某一天的课程
type ScheduleDayResponse struct {
	DayOfWeek int            `json:"day_of_week"` // 0=周日
	DayName   string         `json:"day_name"`
	Slots     []SlotResponse `json:"slots"`
}

// WeekScheduleResponse 一周课表（固定 7 天）
type WeekScheduleResponse struct {
	TeacherID string                `json:"teacher_id"`
	Days      []ScheduleDayResponse `json:"days"`
}
