package models

import "time"

type User struct {
	ID                 string
	PushToken          string
	TotalReminders     int
	CompletedReminders int
	StreakDays         int
	LastCompletedOn    *string
	CreatedAt          time.Time
}
