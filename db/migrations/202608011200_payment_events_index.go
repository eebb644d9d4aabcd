package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Local mirror of db.PaymentEvent so later model changes don't rewrite
// migration history.
type paymentEvent struct {
	ID          uint
	PaymentHash string `gorm:"index;not null"`
	Type        string
	Status      string
	Payload     datatypes.JSON
	CreatedAt   time.Time
}

func (paymentEvent) TableName() string {
	return "payment_events"
}

// Composite index for the audit-trail read path (events for one hash in
// insertion order); AutoMigrate only creates the single-column index from
// the model tag.
var _202608011200_payment_events_index = &gormigrate.Migration{
	ID: "202608011200_payment_events_index",
	Migrate: func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&paymentEvent{}); err != nil {
			return err
		}
		return tx.Exec("CREATE INDEX IF NOT EXISTS idx_payment_events_hash_created ON payment_events(payment_hash, created_at)").Error
	},
	Rollback: func(tx *gorm.DB) error {
		return tx.Exec("DROP INDEX IF EXISTS idx_payment_events_hash_created").Error
	},
}
