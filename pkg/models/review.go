package models

import "time"

type Review struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id,omitempty"`
	AuthorName string       `json:"author_name,omitempty"`
	Email      string       `json:"email,omitempty"`
	ProductID  string       `json:"product_id,omitempty"`
	Text       string       `json:"text"`
	Rating     *int         `json:"rating,omitempty"`
	Photos     []string     `json:"photos"`
	Approved   bool         `json:"approved"`
	Reply      *ReviewReply `json:"reply,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	DeletedAt  *time.Time   `json:"-"`
}

type ReviewReply struct {
	Text      string    `json:"text"`
	AdminID   string    `json:"admin_id"`
	RepliedAt time.Time `json:"replied_at"`
}
