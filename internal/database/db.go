package database

import (
	"fmt"
	"os"

	"interchat_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			os.Getenv("DB_PORT"),
		)
	}

	var err error
	// TranslateError maps unique violations to gorm.ErrDuplicatedKey, which the credit ledger relies on.
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.Translation{},
		&models.TranslationCacheEntry{},
		&models.UsageLog{},
		&models.CreditBalance{},
		&models.CreditTransaction{},
		&models.KnowledgeSource{},
		&models.KnowledgeChunk{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to auto migrate")
	}
}
