package types

import (
	"context"
	"time"
)

// BaseModel carries the audit fields shared by every persisted document
type BaseModel struct {
	Status    Status    `db:"status" json:"status" dynamodbav:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" dynamodbav:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by" dynamodbav:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by" dynamodbav:"updated_by"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}

// Touch records a modification by the user in ctx
func (b *BaseModel) Touch(ctx context.Context) {
	b.UpdatedAt = time.Now().UTC()
	b.UpdatedBy = GetUserID(ctx)
}
