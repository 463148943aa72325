package backend

import (
	"github.com/MarcoPoloResearchLab/roster/internal/activities"
)

// Activity models a persisted activity. Position fixes the order in which
// activities appear in a snapshot.
type Activity struct {
	Name            string `gorm:"column:name;primaryKey;size:190;not null"`
	Description     string `gorm:"column:description;type:text;not null;default:''"`
	Schedule        string `gorm:"column:schedule;size:190;not null;default:''"`
	MaxParticipants int    `gorm:"column:max_participants;not null;default:0"`
	Position        int    `gorm:"column:position;not null;default:0;index:idx_activities_position"`
}

// TableName provides the explicit table binding for GORM.
func (Activity) TableName() string {
	return "activities"
}

// Participant records one signup. Rows are listed in insertion order.
type Participant struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ActivityName      string `gorm:"column:activity_name;size:190;not null;uniqueIndex:idx_participants_activity_email,priority:1"`
	Email             string `gorm:"column:email;size:320;not null;uniqueIndex:idx_participants_activity_email,priority:2"`
	SignedUpAtSeconds int64  `gorm:"column:signed_up_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Participant) TableName() string {
	return "activity_participants"
}

// DefaultActivities returns the roster a fresh database is seeded with.
func DefaultActivities() []activities.Entry {
	return []activities.Entry{
		{
			Name: "Chess Club",
			Detail: activities.Detail{
				Description:     "Learn strategies and compete in chess tournaments",
				Schedule:        "Fridays, 3:30 PM - 5:00 PM",
				MaxParticipants: 12,
				Participants:    []string{"michael@mergington.edu", "daniel@mergington.edu"},
			},
		},
		{
			Name: "Programming Class",
			Detail: activities.Detail{
				Description:     "Learn programming fundamentals and build software projects",
				Schedule:        "Tuesdays and Thursdays, 3:30 PM - 4:30 PM",
				MaxParticipants: 20,
				Participants:    []string{"emma@mergington.edu", "sophia@mergington.edu"},
			},
		},
		{
			Name: "Gym Class",
			Detail: activities.Detail{
				Description:     "Physical education and sports activities",
				Schedule:        "Mondays, Wednesdays, Fridays, 2:00 PM - 3:00 PM",
				MaxParticipants: 30,
				Participants:    []string{"john@mergington.edu", "olivia@mergington.edu"},
			},
		},
	}
}
