package models

import (
	"log"

	"github.com/horecafocus/backoffice_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Location{}, &Team{},
		&RawRecord{}, &ProcessedRecord{}, &AggregatedRecord{}, &HierarchicalAggregate{},
		&PnLLineItem{}, &PnLAggregate{},
		&PipelineSetting{},
		&PartnerConnection{}, &SyncRun{}, &SyncRunError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
