package model

import "time"

// Course groups students and lockers.
type Course struct {
	ID        int64     `json:"id"`
	Nome      string    `json:"nome"`
	Codigo    string    `json:"codigo"`
	CreatedAt time.Time `json:"createdAt"`
}

// CourseSummary is the course embedded in a locker view.
type CourseSummary struct {
	ID     int64  `json:"id"`
	Nome   string `json:"nome"`
	Codigo string `json:"codigo"`
}

// Student can hold at most one active rental at a time.
type Student struct {
	ID        int64     `json:"id"`
	Nome      string    `json:"nome"`
	Matricula string    `json:"matricula"`
	CourseID  int64     `json:"courseId"`
	Email     string    `json:"email,omitempty"`
	Telefone  string    `json:"telefone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StudentSummary is the student embedded in a rental summary.
type StudentSummary struct {
	ID        int64  `json:"id"`
	Nome      string `json:"nome"`
	Matricula string `json:"matricula"`
}
