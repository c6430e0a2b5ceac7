package ticket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokility/tokilityd/internal/core/economics"
	"github.com/tokility/tokilityd/internal/crypto"
)

func sampleConfig() economics.Configuration {
	return economics.Configuration{
		PrimaryPrice:   2_500_000,
		PlatformFee:    50_000,
		ResaleCap:      5_000_000,
		CreatorFee:     200_000,
		ResaleAllowed:  true,
		ResaleDeadline: 1_900_000_000,
		GiftingAllowed: true,
		CreatorAddress: crypto.KeyPairFromSeed([]byte("venue")).Address(),
	}
}

func TestEncodeDecodeVariants(t *testing.T) {
	tickets := []*Ticket{
		{
			Configuration: sampleConfig(),
			BusinessType:  Concert,
			Issuer:        "big-hall",
			Concert:       &ConcertDetails{Type: "rock", Name: "Midnight Run", Location: "Arena 5", Datetime: "2026-10-01T20:00"},
		},
		{
			Configuration: sampleConfig(),
			BusinessType:  Cinema,
			Issuer:        "multiplex",
			Cinema:        &CinemaDetails{Type: "premiere", Name: "Late Show", Datetime: "2026-09-12T22:00", Seat: 14, Row: 3},
		},
		{
			Configuration: sampleConfig(),
			BusinessType:  Conference,
			Issuer:        "devcon",
			Conference:    &ConferenceDetails{Type: "tech", Name: "GopherDays", Duration: "2d", Datetime: "2026-11-03T09:00"},
		},
		{
			Configuration: sampleConfig(),
			BusinessType:  Appointment,
			Issuer:        "clinic",
			Appointment:   &AppointmentDetails{Duration: 30, Datetime: "2026-09-20T10:30", DoctorName: "Dr. Reyes"},
		},
		{
			Configuration: sampleConfig(),
			BusinessType:  Restaurant,
			Issuer:        "bistro",
			Restaurant:    &RestaurantDetails{Type: "dinner", Datetime: "2026-09-15T19:00", Name: "Chez Nous"},
		},
	}

	for _, tk := range tickets {
		t.Run(string(tk.BusinessType), func(t *testing.T) {
			data, err := tk.Encode()
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			require.Equal(t, tk, decoded)
			require.NotEmpty(t, decoded.Describe())
		})
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	tk := &Ticket{
		Configuration: sampleConfig(),
		BusinessType:  Concert,
		Issuer:        "big-hall",
		// Cinema payload under a concert tag.
		Cinema: &CinemaDetails{Name: "wrong"},
	}
	require.Error(t, tk.Validate())

	tk.BusinessType = "karaoke"
	require.ErrorIs(t, tk.Validate(), ErrUnknownBusinessType)
}
