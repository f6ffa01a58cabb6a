package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/domails/internal/models"
)

type Repositories struct {
	DomainRepository DomainRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository: NewDomainRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Domain{},
	)
}
