package models

import (
	"log"

	"bitbucket.org/mmdatafocus/assets_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Asset{}, &Purchase{},
		&Employee{}, &Department{},
		&User{},
		&SyncRun{}, &SyncRecordError{}, &EntityMapping{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
