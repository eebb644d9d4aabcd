package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/opentip/funnelhub/db"
)

func Migrate(gormDB *gorm.DB) error {
	// Run manual migrations first (for schema changes AutoMigrate can't handle)
	m := gormigrate.New(gormDB, gormigrate.DefaultOptions, []*gormigrate.Migration{
		_202608011200_payment_events_index,
	})
	if err := m.Migrate(); err != nil {
		return err
	}

	// AutoMigrate all core models
	return gormDB.AutoMigrate(
		&db.Setting{},
		&db.Payment{},
		&db.TipLeg{},
		&db.PaymentEvent{},
		&db.Forward{},
	)
}
