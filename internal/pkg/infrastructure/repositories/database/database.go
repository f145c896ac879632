package database

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trusts-eu/catalog-connector/internal/pkg/infrastructure/repositories/persistence"
)

// Datastore is the agreement store, injected into the negotiation
// workflow to improve testability.
type Datastore interface {
	GetOrCreateResource(id string) (*persistence.Resource, error)
	StoreAgreement(agreement *persistence.Agreement) error
	GetAgreementsForResource(resourceID, userID string) ([]persistence.Agreement, error)
}

type agreementDB struct {
	impl *gorm.DB
}

// ConnectorFunc is used to inject a database connection method into
// NewDatabaseConnection.
type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector opens a connection to a local sqlite database. An
// empty path yields an in-memory database.
func NewSQLiteConnector(filePath string) ConnectorFunc {
	return func() (*gorm.DB, error) {
		if filePath == "" {
			filePath = "file::memory:"
		}

		db, err := gorm.Open(sqlite.Open(filePath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}

		return db, err
	}
}

// NewDatabaseConnection initializes a new connection to the database and
// wraps it in a Datastore.
func NewDatabaseConnection(connect ConnectorFunc) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	db := &agreementDB{impl: impl}

	err = db.impl.AutoMigrate(
		&persistence.Resource{},
		&persistence.Agreement{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

func (db *agreementDB) GetOrCreateResource(id string) (*persistence.Resource, error) {
	resource := persistence.Resource{}

	result := db.impl.First(&resource, "id = ?", id)
	if result.Error == nil {
		return &resource, nil
	}

	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	resource = persistence.Resource{ID: id}
	if result := db.impl.Create(&resource); result.Error != nil {
		return nil, result.Error
	}

	return &resource, nil
}

func (db *agreementDB) StoreAgreement(agreement *persistence.Agreement) error {
	return db.impl.Create(agreement).Error
}

func (db *agreementDB) GetAgreementsForResource(resourceID, userID string) ([]persistence.Agreement, error) {
	agreements := []persistence.Agreement{}

	query := db.impl.Where("resource_id = ?", resourceID)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	if result := query.Find(&agreements); result.Error != nil {
		return nil, result.Error
	}

	return agreements, nil
}
