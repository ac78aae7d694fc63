package model

import "time"

// InitialEquity is a single-row table: the baseline equity value the
// console displays against. Last write wins; ID is pinned to 1.
type InitialEquity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (InitialEquity) TableName() string { return "initial_equities" }

// InitialEquitySingletonID is the fixed primary key of the single row this
// table ever holds.
const InitialEquitySingletonID uint = 1
