package webhook

import "strings"

const correlationFields = 4

// Correlation identifies what an outbound message was about so that a
// reply can be routed back. It travels as appId|appointmentId|customerId|data.
type Correlation struct {
	AppID         string
	AppointmentID string
	CustomerID    string
	Data          string
}

func EncodeCorrelation(c Correlation) string {
	return strings.Join([]string{c.AppID, c.AppointmentID, c.CustomerID, c.Data}, "|")
}

// DecodeCorrelation splits into at most four fields. Missing trailing
// fields are empty and the data field may itself contain pipes.
func DecodeCorrelation(s string) Correlation {
	parts := strings.SplitN(s, "|", correlationFields)
	for len(parts) < correlationFields {
		parts = append(parts, "")
	}
	return Correlation{
		AppID:         parts[0],
		AppointmentID: parts[1],
		CustomerID:    parts[2],
		Data:          parts[3],
	}
}
