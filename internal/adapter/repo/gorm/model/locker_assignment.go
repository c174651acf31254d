package model

import "time"

const TableNameLockerAssignment = "locker_assignments"

type LockerAssignment struct {
	LockerNumber int32     `gorm:"column:locker_number;primaryKey" json:"locker_number"`
	CardID       string    `gorm:"column:card_id;not null" json:"card_id"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (*LockerAssignment) TableName() string {
	return TableNameLockerAssignment
}
