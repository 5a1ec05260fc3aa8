package models

import "time"

// Session represents one QR attendance session for a class. The token is the
// QR payload and the sole lookup key used by scans.
type Session struct {
	ID        string    `db:"id" json:"id"`
	ClassName ClassName `db:"class_name" json:"className"`
	Token     string    `db:"token" json:"qrCode"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SessionSummary lists a session together with its creator's username.
type SessionSummary struct {
	Session
	CreatedByUsername string `db:"created_by_username" json:"createdByUsername"`
}

// ScanRecord is a single accepted scan belonging to a session. ScanDay is the
// server-local calendar day of the scan and backs the once-per-day constraint.
type ScanRecord struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"sessionId"`
	StudentID string    `db:"student_id" json:"studentId"`
	ScannedAt time.Time `db:"scanned_at" json:"scannedAt"`
	ScanDay   time.Time `db:"scan_day" json:"-"`
}

// ScanResult is returned on a successful scan.
type ScanResult struct {
	Message    string    `json:"message"`
	ClassName  ClassName `json:"className"`
	AttendedAt time.Time `json:"attendedAt"`
}

// ClassScanRow is the flattened storage row backing the by-class query: one
// scan joined with its session and the scanning student.
type ClassScanRow struct {
	StudentInfo
	ScanID           string    `db:"scan_id"`
	ScannedAt        time.Time `db:"scanned_at"`
	Token            string    `db:"token"`
	SessionCreatedAt time.Time `db:"session_created_at"`
}

// ClassAttendanceRecord is one entry of the by-class report.
type ClassAttendanceRecord struct {
	ID          string      `json:"id"`
	Student     StudentInfo `json:"student"`
	AttendedAt  time.Time   `json:"attendedAt"`
	QRCode      string      `json:"qrCode"`
	QRCreatedAt time.Time   `json:"qrCreatedAt"`
}

// DayScanRow is the storage row backing the by-day query.
type DayScanRow struct {
	StudentInfo
	SessionID        string    `db:"session_id"`
	SessionClassName ClassName `db:"session_class_name"`
	Token            string    `db:"token"`
	ScannedAt        time.Time `db:"scanned_at"`
}

// DayScan is a single scan inside a day group.
type DayScan struct {
	Student    StudentInfo `json:"student"`
	AttendedAt time.Time   `json:"attendedAt"`
}

// DaySessionGroup groups one session's scans for a given day. Sessions with
// no scans on the day are dropped from the report.
type DaySessionGroup struct {
	SessionID     string    `json:"id"`
	ClassName     ClassName `json:"className"`
	QRCode        string    `json:"qrCode"`
	TodayStudents []DayScan `json:"todayStudents"`
}

// StudentScanRow is the storage row backing the by-student query.
type StudentScanRow struct {
	ClassName        ClassName `db:"class_name"`
	ScannedAt        time.Time `db:"scanned_at"`
	SessionCreatedAt time.Time `db:"session_created_at"`
}

// StudentAttendanceRecord is one entry of a student's own attendance history.
type StudentAttendanceRecord struct {
	ClassName   ClassName `json:"className"`
	AttendedAt  time.Time `json:"attendedAt"`
	QRCreatedAt time.Time `json:"qrCreatedAt"`
}
