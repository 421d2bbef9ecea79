package model

import "time"

// Ride は投稿されたライドオファーを表す。
// OwnerUID / OwnerEmail は作成時の認証済みユーザーから設定され、以後不変。
type Ride struct {
	ID            string
	OwnerUID      string
	OwnerEmail    string
	DepartureTime time.Time
	StartLocation string
	Destination   string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive は指定時刻においてこのライドがアクティブ（出発時刻が未来）かを返す。
func (r *Ride) IsActive(now time.Time) bool {
	return r.DepartureTime.After(now)
}
