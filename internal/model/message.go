package model

import "time"

type MailMessage struct {
	From    string   `json:"from"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
}

type MailResult struct {
	MessageID string `json:"message_id"`
}

// TextMessage is an outbound SMS. AppointmentID, CustomerID and Data are
// carried to the provider so that replies can be correlated.
type TextMessage struct {
	To            string `json:"to"`
	Body          string `json:"body"`
	AppointmentID string `json:"appointment_id,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	Data          string `json:"data,omitempty"`
}

type TextMessageResult struct {
	Data    map[string]any `json:"data,omitempty"`
	TextID  string         `json:"text_id"`
	Success bool           `json:"success"`
}

// TextReply is an inbound SMS reply with its decoded correlation fields.
type TextReply struct {
	ReceivedAt    time.Time `json:"received_at"`
	From          string    `json:"from"`
	Body          string    `json:"body"`
	TextID        string    `json:"text_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Data          string    `json:"data,omitempty"`
	AppID         int64     `json:"app_id"`
}

// ParticipantType identifies who sent a handled reply.
type ParticipantType string

const (
	ParticipantCustomer ParticipantType = "customer"
	ParticipantUnknown  ParticipantType = "unknown"
)

type RespondResult struct {
	HandledBy       string          `json:"handled_by"`
	ParticipantType ParticipantType `json:"participant_type"`
}
