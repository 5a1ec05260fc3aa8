package models

import "time"

// Exam is an admin-defined exam for one class. (examName, className) is
// unique.
type Exam struct {
	ID         string    `db:"id" json:"id"`
	ExamName   string    `db:"exam_name" json:"examName"`
	ClassName  ClassName `db:"class_name" json:"className"`
	FullDegree float64   `db:"full_degree" json:"fullDegree"`
	CreatedBy  string    `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Degree is one student's grade for one exam. (user_id, exam_id) is unique.
type Degree struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"userId"`
	ExamID        string    `db:"exam_id" json:"examId"`
	StudentDegree float64   `db:"student_degree" json:"studentDegree"`
	AddedBy       string    `db:"added_by" json:"addedBy"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// DegreeDetail joins a degree with student and exam metadata for listings.
type DegreeDetail struct {
	Degree
	Username   string    `db:"username" json:"username"`
	FirstName  string    `db:"first_name" json:"firstName"`
	LastName   string    `db:"last_name" json:"lastName"`
	ExamName   string    `db:"exam_name" json:"examName"`
	FullDegree float64   `db:"full_degree" json:"fullDegree"`
	ExamClass  ClassName `db:"exam_class" json:"examClassName"`
}
