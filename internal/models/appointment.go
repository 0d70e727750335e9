package models

// ParsedAppointment is the result of extracting an appointment from free text.
// Empty string fields mean the value was not found.
type ParsedAppointment struct {
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Service       string `json:"service,omitempty"`
	Clinic        string `json:"clinic,omitempty"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	RawDate       string `json:"raw_date,omitempty"` // RawDate исходная строка даты, если ее не удалось нормализовать
	IsAppointment bool   `json:"is_appointment"`
}

// Payload converts the parsed candidate into an appointment payload.
func (p ParsedAppointment) Payload(ownerID string) AppointmentPayload {
	return AppointmentPayload{
		OwnerID: ownerID,
		Name:    p.Name,
		Phone:   p.Phone,
		Service: p.Service,
		Clinic:  p.Clinic,
		Date:    p.Date,
		Time:    p.Time,
		Source:  "agent",
	}
}
