package models

import (
	"database/sql/driver"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Document is a JSON document kept exactly as serialized. It is stored as
// plain text on every engine so substring search sees the same bytes that
// were written; on MySQL that means LONGTEXT, since TEXT stops at 64 KiB.
type Document datatypes.JSON

func (d Document) GormDataType() string {
	return "text"
}

func (Document) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "mysql" {
		return "longtext"
	}
	return "text"
}

func (d Document) Value() (driver.Value, error) {
	return datatypes.JSON(d).Value()
}

func (d *Document) Scan(value any) error {
	return (*datatypes.JSON)(d).Scan(value)
}

func (d Document) MarshalJSON() ([]byte, error) {
	return datatypes.JSON(d).MarshalJSON()
}

func (d *Document) UnmarshalJSON(b []byte) error {
	return (*datatypes.JSON)(d).UnmarshalJSON(b)
}

func (d Document) String() string {
	return string(d)
}
