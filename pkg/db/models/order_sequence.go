package models

// OrderSequence is the dedicated counter row behind atomic order numbering.
type OrderSequence struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value int64  `gorm:"column:value;not null"`
}
