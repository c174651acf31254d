package gormrepo

import (
	"context"
	"time"

	"lockerkiosk/internal/adapter/repo/gorm/model"
	"lockerkiosk/internal/domain/locker"

	"gorm.io/gorm"
)

type AssignmentRepo struct {
	db  *gorm.DB
	tx  TxManager
	now func() time.Time
}

func NewAssignmentRepo(db *gorm.DB) AssignmentRepo {
	return AssignmentRepo{db: db, tx: NewTxManager(db), now: time.Now}
}

func (r AssignmentRepo) Load(ctx context.Context) (locker.Assignments, error) {
	rows := []model.LockerAssignment{}
	if err := getDBFromCtx(ctx, r.db).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(locker.Assignments, len(rows))
	for _, row := range rows {
		out[locker.Number(row.LockerNumber)] = row.CardID
	}
	return out, nil
}

// Save replaces the table contents in one transaction.
func (r AssignmentRepo) Save(ctx context.Context, snapshot locker.Assignments) error {
	now := r.now().UTC()
	rows := make([]model.LockerAssignment, 0, len(snapshot))
	for n, card := range snapshot {
		rows = append(rows, model.LockerAssignment{
			LockerNumber: int32(n),
			CardID:       card,
			UpdatedAt:    now,
		})
	}
	return r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		db := getDBFromCtx(txCtx, r.db)
		if err := db.Exec("DELETE FROM " + model.TableNameLockerAssignment).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return db.Create(&rows).Error
	})
}
