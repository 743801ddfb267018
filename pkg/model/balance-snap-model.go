package model

// BalanceSnap model, one row per balance change written by a log
type BalanceSnap struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	LogID    int64 `json:"logID" gorm:"omitempty; not null; default:0; uniqueindex:idx_bs_log_id_index"`
	LogIndex int64 `json:"logIndex" gorm:"omitempty; not null; default:0; uniqueindex:idx_bs_log_id_index"`

	Reason string `json:"reason" gorm:"omitempty; not null; default:''; type:varchar(32);"` // e.g. BuyTicket
	Asset  string `json:"asset" gorm:"omitempty; not null; type:char(64); index:idx_bs_asset_owner;"`
	Owner  string `json:"owner" gorm:"omitempty; not null; type:char(64); index:idx_bs_asset_owner;"`

	Debit  uint64 `json:"debit" gorm:"omitempty; not null; default:0;"`
	Credit uint64 `json:"credit" gorm:"omitempty; not null; default:0;"`
	New    uint64 `json:"new" gorm:"omitempty; not null; default:0;"`

	Model
}
