package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
)

// ── iCalendar 导出 ──
//
// 每个时段生成一个 VEVENT：DTSTART 取本周对应星期的日期，
// 以 TZID 标注本地时间，RRULE 按周重复。

const icsProductID = "-//School Desk//Schedule//EN"

var icsWeekdays = [daysPerWeek]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func (s *scheduleService) ExportICS(ctx context.Context, callerID, callerRole string) ([]byte, error) {
	week, err := s.GetWeek(ctx, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	out, err := buildScheduleICS(week, s.now().In(s.loc), s.loc)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// buildScheduleICS 以 now 所在周为起点生成日历
func buildScheduleICS(week *dto.WeekScheduleResponse, now time.Time, loc *time.Location) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)

	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -int(now.Weekday()))
	tzParam := &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{loc.String()}}

	for _, day := range week.Days {
		date := weekStart.AddDate(0, 0, day.DayOfWeek)
		for _, slot := range day.Slots {
			start, err := atClock(date, slot.StartTime)
			if err != nil {
				return "", err
			}
			end, err := atClock(date, slot.EndTime)
			if err != nil {
				return "", err
			}

			ev := cal.AddEvent(slot.ID + "@school-desk")
			ev.SetDtStampTime(now.UTC())
			ev.SetSummary(slotSummary(slot))
			if slot.Room != "" {
				ev.SetLocation(slot.Room)
			}
			ev.SetProperty(ics.ComponentPropertyDtStart, start.Format("20060102T150405"), tzParam)
			ev.SetProperty(ics.ComponentPropertyDtEnd, end.Format("20060102T150405"), tzParam)
			ev.SetProperty(ics.ComponentPropertyRrule, "FREQ=WEEKLY;BYDAY="+icsWeekdays[day.DayOfWeek])
		}
	}
	return cal.Serialize(), nil
}

func slotSummary(slot dto.SlotResponse) string {
	if slot.ClassName == "" {
		return slot.Subject
	}
	return slot.Subject + " - " + slot.ClassName
}

// atClock 把 HH:MM 落到 date 当天
func atClock(date time.Time, hhmm string) (time.Time, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("时间格式错误: %q", hhmm)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, fmt.Errorf("时间格式错误: %q", hhmm)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location()), nil
}
