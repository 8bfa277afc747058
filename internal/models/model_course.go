package models

import "time"

// Course is a purchasable video course.
type Course struct {
	ID     string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Title  string `gorm:"column:title;type:varchar(256);not null" json:"title"`
	Price  int64  `gorm:"column:price;type:bigint;not null" json:"price"`
	Active bool   `gorm:"column:active;not null;default:true" json:"active"`
	// SpotPlayerCourseID links to the license issuer; empty means the course
	// ships without a player license.
	SpotPlayerCourseID string `gorm:"column:spot_player_course_id;type:varchar(64)" json:"spot_player_course_id"`
	// FreeWithoutEmail allows enrolling without an email address.
	FreeWithoutEmail bool `gorm:"column:free_without_email;not null;default:false" json:"free_without_email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// Test is a purchasable standalone assessment.
type Test struct {
	ID     string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Title  string `gorm:"column:title;type:varchar(256);not null" json:"title"`
	Price  int64  `gorm:"column:price;type:bigint;not null" json:"price"`
	Active bool   `gorm:"column:active;not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Test) TableName() string { return "test" }
