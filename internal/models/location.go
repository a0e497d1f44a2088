package models

// Location is a single ping reported by a device. Records are append-only.
type Location struct {
	ID        int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID  string   `gorm:"index:idx_locations_device_ts,priority:1;not null" json:"device_id"`
	Latitude  float64  `gorm:"not null" json:"latitude"`
	Longitude float64  `gorm:"not null" json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	TS        int64    `gorm:"column:ts;index:idx_locations_device_ts,priority:2;index:idx_locations_ts;not null" json:"ts"`
}

func (Location) TableName() string {
	return "locations"
}
