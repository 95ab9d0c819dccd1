package domain

import "time"

const AlertTypeNegativeReview = "negative_review"

// Alert is raised as a side effect of ingesting negative reviews.
type Alert struct {
	ID        int64
	UserID    int64
	AlertType string
	Content   string
	Date      time.Time
	IsRead    bool
}

type User struct {
	ID    int64
	Email string
	Name  string
}

type Location struct {
	ID     int64
	UserID int64
	Name   string
}
