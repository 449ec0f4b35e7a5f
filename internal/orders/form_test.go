package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
)

func validForm() Form {
	return Form{
		Location:     "Almaty",
		Destination:  "Astana",
		NoOfTrucks:   "2",
		CargoType:    "grain",
		PickupTime:   "2024-03-01 10:00",
		DeliveryTime: "2024-03-02 18:30:00",
	}
}

func TestForm_Request(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		form := validForm()
		form.CargoWeight = "1500.5"
		form.CompanyName = "  ACME  "

		req, err := form.Request()
		require.NoError(t, err)

		assert.Equal(t, 2, req.NoOfTrucks)
		assert.Equal(t, "ACME", req.CompanyName)
		assert.Equal(t, "2024-03-01 10:00:00", req.PickupTime.String())
		assert.Equal(t, "2024-03-02 18:30:00", req.DeliveryTime.String())
		require.NotNil(t, req.CargoWeight)
		assert.Equal(t, 1500.5, float64(*req.CargoWeight))
	})

	tests := []struct {
		name    string
		mutate  func(f *Form)
		wantMsg string
	}{
		{
			name:    "missing destination",
			mutate:  func(f *Form) { f.Destination = "   " },
			wantMsg: "The destination field is required.",
		},
		{
			name:    "missing trucks",
			mutate:  func(f *Form) { f.NoOfTrucks = "" },
			wantMsg: "The no_of_trucks field is required.",
		},
		{
			name:    "trucks not a number",
			mutate:  func(f *Form) { f.NoOfTrucks = "two" },
			wantMsg: "The no_of_trucks field must be an integer.",
		},
		{
			name:    "zero trucks",
			mutate:  func(f *Form) { f.NoOfTrucks = "0" },
			wantMsg: "The no_of_trucks field must be greater than 0.",
		},
		{
			name:    "weight not a number",
			mutate:  func(f *Form) { f.CargoWeight = "heavy" },
			wantMsg: "The cargo_weight field must be a number.",
		},
		{
			name:    "bad pickup",
			mutate:  func(f *Form) { f.PickupTime = "tomorrow" },
			wantMsg: "The pickup_time field must be a date in YYYY-MM-DD HH:mm:ss format.",
		},
		{
			name:    "missing delivery",
			mutate:  func(f *Form) { f.DeliveryTime = "" },
			wantMsg: "The delivery_time field is required.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(&form)

			_, err := form.Request()

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.wantMsg, verr.Message)
		})
	}
}
