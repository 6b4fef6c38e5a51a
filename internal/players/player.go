package players

import "time"

// Player is the denormalized profile for a platform account. Created on
// first interaction, refreshed on every subsequent one, never deleted.
type Player struct {
	ID        int64     `gorm:"column:tg_id;primaryKey"`
	Username  string    `gorm:"column:username;size:64"`
	FirstName string    `gorm:"column:first_name;size:128"`
	LastName  string    `gorm:"column:last_name;size:128"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Player) TableName() string {
	return "players"
}

// DisplayName renders the profile the way leaderboards show it.
func (p Player) DisplayName() string {
	switch {
	case p.FirstName != "" && p.Username != "":
		return p.FirstName + " @" + p.Username
	case p.FirstName != "":
		return p.FirstName
	case p.Username != "":
		return "@" + p.Username
	default:
		return ""
	}
}
