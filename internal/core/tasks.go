package core

import (
	"errors"

	"daka/internal/config"
)

// ErrUnknownTask is returned for a task name outside the catalogue.
var ErrUnknownTask = errors.New("unknown task")

// TasksFromSchedule builds the fixed catalogue of three tasks.
func TasksFromSchedule(s config.ScheduleConfig) []Task {
	return []Task{
		{
			Name:    TaskMorningCheckin,
			Title:   "上班打卡",
			Kind:    TaskKindCheckin,
			Variant: VariantMorning,
			Hour:    s.MorningCheckin.Hour,
			Minute:  s.MorningCheckin.Minute,
			Grace:   s.Grace,
		},
		{
			Name:    TaskEveningCheckin,
			Title:   "下班打卡",
			Kind:    TaskKindCheckin,
			Variant: VariantEvening,
			Hour:    s.EveningCheckin.Hour,
			Minute:  s.EveningCheckin.Minute,
			Grace:   s.Grace,
		},
		{
			Name:   TaskDailyReport,
			Title:  "日报",
			Kind:   TaskKindReport,
			Hour:   s.DailyReport.Hour,
			Minute: s.DailyReport.Minute,
			Grace:  s.Grace,
		},
	}
}

// FindTask looks a task up by name.
func FindTask(tasks []Task, name string) (Task, error) {
	for _, t := range tasks {
		if t.Name == name {
			return t, nil
		}
	}
	return Task{}, ErrUnknownTask
}

// CheckinTaskForHour picks the check-in variant for a startup run: morning
// between 06:00 and 17:00, evening otherwise.
func CheckinTaskForHour(hour int) string {
	if hour >= 6 && hour < 17 {
		return TaskMorningCheckin
	}
	return TaskEveningCheckin
}
