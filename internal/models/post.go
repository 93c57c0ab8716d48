package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TermList is a JSON encoded list of taxonomy names stored in a text column.
// A nil TermList means the terms were never resolved and is stored as NULL;
// a non-nil empty TermList means they were resolved and none exist ("[]").
type TermList []string

// Scan implements the sql.Scanner interface
func (l *TermList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into TermList", value)
	}

	names := []string{}
	if err := json.Unmarshal(raw, &names); err != nil {
		return fmt.Errorf("failed to decode term list: %w", err)
	}
	*l = names
	return nil
}

// Value implements the driver.Valuer interface
func (l TermList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Resolved reports whether the list was populated from upstream terms.
func (l TermList) Resolved() bool {
	return l != nil
}

type Post struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	PostID           int64      `gorm:"uniqueIndex;not null" json:"postId"`
	Title            string     `gorm:"not null;size:1000" json:"title"`
	Permalink        string     `gorm:"not null;size:2000" json:"permalink"`
	PostType         string     `gorm:"size:100;default:'post'" json:"postType"`
	PostDate         *time.Time `gorm:"index" json:"postDate"`
	PostModified     *time.Time `json:"postModified"`
	PostStatus       string     `gorm:"size:50;default:'publish'" json:"postStatus"`
	Content          string     `gorm:"type:text" json:"content"`
	Categories       TermList   `gorm:"type:text" json:"categories"`
	Tags             TermList   `gorm:"type:text" json:"tags"`
	ResponsibleEmail *string    `gorm:"size:320;index" json:"responsibleEmail"`
	LastReminder     *time.Time `json:"lastReminder"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ContentColumns are the columns a re-sync is allowed to overwrite.
// responsible_email and last_reminder belong to operators and the reminder run.
var ContentColumns = []string{
	"title",
	"permalink",
	"post_type",
	"post_date",
	"post_modified",
	"post_status",
	"content",
	"categories",
	"tags",
}
