package domain

import "time"

// TranscriptSession is the persisted record of one widget session.
type TranscriptSession struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Endpoint  string    `json:"endpoint" yaml:"endpoint"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// TranscriptEntry is a finalized message stored under a session.
type TranscriptEntry struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Message   Message   `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
