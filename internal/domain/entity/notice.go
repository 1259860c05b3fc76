package entity

import "time"

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	NoticeInfo       NoticeKind = "info"
	NoticeSuccess    NoticeKind = "success"
	NoticeInputError NoticeKind = "input_error"
	NoticeSafetyGate NoticeKind = "safety_gate"
	NoticeRejected   NoticeKind = "rejected"
	NoticeReverted   NoticeKind = "reverted"
	// NoticeFailed is a sequence that stopped without a mined outcome, e.g. a
	// submission error.
	NoticeFailed NoticeKind = "failed"
)

// Notice is a transient, dismissible message for the dashboard user.
type Notice struct {
	ID         string     `json:"id"`
	Kind       NoticeKind `json:"kind"`
	Message    string     `json:"message"`
	Action     ActionKind `json:"action,omitempty"`
	SequenceID string     `json:"sequenceId,omitempty"`
	TxHash     string     `json:"txHash,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
