package models

import (
	"time"

	"gorm.io/gorm"
)

// Prospect represents a single outreach target.
type Prospect struct {
	gorm.Model
	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`

	Status   string `gorm:"default:'new';index" json:"status"` // new, contacted, qualified, customer
	Category string `gorm:"index" json:"category"`
	Priority string `gorm:"index" json:"priority"` // low, medium, high

	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	LastContactAt *time.Time `json:"last_contact_at,omitempty"`

	// Relations
	Tags []ProspectTag `gorm:"foreignKey:ProspectID" json:"tags,omitempty"`
}

// ProspectTag represents tags for prospects (normalized)
type ProspectTag struct {
	gorm.Model
	ProspectID uint   `gorm:"not null;index" json:"prospect_id"`
	Tag        string `gorm:"not null;index" json:"tag"`
}

// ProspectFilter is the declarative predicate used by batch enrollment.
// Zero-valued fields are ignored.
type ProspectFilter struct {
	Status          string   `json:"status,omitempty"`
	Category        string   `json:"category,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	LastContactDays int      `json:"last_contact_days,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// FullName returns the prospect's display name, falling back to the
// email address when no name is on record.
func (p *Prospect) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return p.Email
}

// Contactable reports whether outreach to this prospect is allowed.
func (p *Prospect) Contactable() bool {
	return !p.IsUnsubscribed && !p.IsDoNotContact
}
