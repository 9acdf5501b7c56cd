package models

import (
	"encoding/json"
	"time"
)

// TimestampLayout is how a scan result's timestamp is shown to people.
const TimestampLayout = "2006-01-02 15:04:05 MST"

type ScanResult struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FranchiseID      string    `gorm:"not null;check:chk_scan_results_franchise_id,franchise_id <> ''" json:"franchise_id"`
	IPAddress        string    `gorm:"column:ip_address;not null;check:chk_scan_results_ip_address,ip_address <> ''" json:"ip_address"`
	ConnectedDevices int64     `gorm:"not null;default:0" json:"connected_devices"`
	Latency          int64     `gorm:"not null;default:0" json:"latency"` // milliseconds
	ScanData         Document  `gorm:"not null" json:"scan_data"`
	Timestamp        time.Time `gorm:"autoCreateTime;index:idx_scan_results_timestamp" json:"timestamp"`
}

func (ScanResult) TableName() string {
	return "scan_results"
}

// Payload decodes the stored scan data back into its structured form.
func (s *ScanResult) Payload() (map[string]any, error) {
	out := map[string]any{}
	if len(s.ScanData) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.ScanData, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatTimestamp renders t in UTC with the zone spelled out, so every
// display of a row agrees on its time.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
