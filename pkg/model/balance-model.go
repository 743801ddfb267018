package model

// Balance model, the current amount of one asset held by one owner
type Balance struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Asset string `json:"asset" gorm:"omitempty; not null; type:char(64); uniqueindex:idx_b_asset_owner;"`
	Owner string `json:"owner" gorm:"omitempty; not null; type:char(64); uniqueindex:idx_b_asset_owner; index;"`

	Amount uint64 `json:"amount" gorm:"omitempty; not null; default:0;"`

	Model
}
