package models

import (
	"photoman/db"
)

func Init() error {
	return db.Instance.AutoMigrate(&Submission{})
}
