package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gm-dapp/internal/model"
)

var ErrNotFound = errors.New("store: record not found")

// Subscribers is the durable subscriber table reconciled by the webhook.
type Subscribers struct {
	db *gorm.DB
}

func NewSubscribers(db *gorm.DB) *Subscribers {
	return &Subscribers{db: db}
}

func (r *Subscribers) Get(ctx context.Context, account string) (model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.WithContext(ctx).Where("account = ?", account).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("get subscriber: %w", err)
	}
	return sub, nil
}

// Subscribe inserts the account unless it already exists and reports whether
// a row was created.
func (r *Subscribers) Subscribe(ctx context.Context, account string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Subscriber{Account: account})
	if res.Error != nil {
		return false, fmt.Errorf("insert subscriber: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Unsubscribe deletes the account's row and reports whether one existed.
func (r *Subscribers) Unsubscribe(ctx context.Context, account string) (bool, error) {
	res := r.db.WithContext(ctx).Where("account = ?", account).Delete(&model.Subscriber{})
	if res.Error != nil {
		return false, fmt.Errorf("delete subscriber: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Subscribers) SetWelcomed(ctx context.Context, account string, welcomed bool) (model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account = ?", account).Take(&sub).Error; err != nil {
			return err
		}
		sub.HasBeenWelcomed = welcomed
		return tx.Model(&sub).Update("has_been_welcomed", welcomed).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return model.Subscriber{}, fmt.Errorf("update subscriber: %w", err)
	}
	return sub, nil
}

func (r *Subscribers) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Subscriber{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

// Ping checks that the database answers.
func (r *Subscribers) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
