package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/models"
)

func TestValidateAppointment(t *testing.T) {
	tests := []struct {
		name    string
		rawDate string
		field   string
		errMsg  string
		payload models.AppointmentPayload
		wantErr bool
	}{
		{
			name:    "valid appointment",
			payload: models.AppointmentPayload{Date: "2024-08-15", Time: "14:00", Phone: "+5511999990000"},
		},
		{
			name:    "valid without phone",
			payload: models.AppointmentPayload{Date: "2024-08-15", Time: "09:30"},
		},
		{
			name:    "missing date",
			payload: models.AppointmentPayload{Time: "14:00"},
			wantErr: true,
			field:   "date",
			errMsg:  "is required",
		},
		{
			name:    "unrecognized date",
			payload: models.AppointmentPayload{Time: "14:00"},
			rawDate: "amanhã",
			wantErr: true,
			field:   "date",
			errMsg:  `unrecognized date "amanhã"`,
		},
		{
			name:    "impossible date",
			payload: models.AppointmentPayload{Date: "2024-02-31", Time: "14:00"},
			wantErr: true,
			field:   "date",
			errMsg:  "must be YYYY-MM-DD",
		},
		{
			name:    "missing time",
			payload: models.AppointmentPayload{Date: "2024-08-15"},
			wantErr: true,
			field:   "time",
			errMsg:  "is required",
		},
		{
			name:    "malformed time",
			payload: models.AppointmentPayload{Date: "2024-08-15", Time: "24:00"},
			wantErr: true,
			field:   "time",
			errMsg:  "must be HH:MM",
		},
		{
			name:    "malformed phone",
			payload: models.AppointmentPayload{Date: "2024-08-15", Time: "14:00", Phone: "12-34"},
			wantErr: true,
			field:   "phone",
			errMsg:  "invalid phone number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAppointment(tt.payload, tt.rawDate)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.errMsg)

			var verr *Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
