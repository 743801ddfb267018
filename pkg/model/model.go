// Package model defines the database models, keeping mysql and redis connection instances.
package model

import (
	"time"
)

type Model struct {
	Status    int8      `json:"status" gorm:"omitempty; not null; type:tinyint; default:1;"`
	CreatedAt time.Time `json:"createdAt" gorm:"omitempty; not null; default:CURRENT_TIMESTAMP(3);"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"omitempty; not null; default:CURRENT_TIMESTAMP(3);"`
}

// All lists every table, in migration order.
func All() []interface{} {
	return []interface{}{
		&Machine{},
		&Ticket{},
		&Balance{},
		&BalanceSnap{},
		&Lastkv{},
	}
}
