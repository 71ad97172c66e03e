package models

// Singleton settings rows, addressed by fixed ids so upserts always hit the
// same row.
const (
	GpsSettingId      = "00000000-0000-0000-0000-000000000001"
	DistanceSettingId = "00000000-0000-0000-0000-000000000002"
)

// GpsSetting is the admin-published reference location for the geofence.
type GpsSetting struct {
	Id        string  `gorm:"primaryKey;size:36" json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (GpsSetting) TableName() string {
	return "gps"
}

// DistanceSetting is the maximum accepted distance in meters from the
// reference location.
type DistanceSetting struct {
	Id   string  `gorm:"primaryKey;size:36" json:"id"`
	Dist float64 `json:"dist"`
}

func (DistanceSetting) TableName() string {
	return "distance"
}
