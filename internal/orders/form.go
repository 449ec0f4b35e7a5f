package orders

import (
	"strconv"
	"strings"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
)

// InputLayout is the short date-time form operators may type.
const InputLayout = "2006-01-02 15:04"

// Form holds the raw values typed by the operator.
type Form struct {
	Location     string
	Destination  string
	NoOfTrucks   string
	TypeOfTruck  string
	CompanyName  string
	CargoType    string
	CargoWeight  string
	PickupTime   string
	DeliveryTime string
}

// Request parses and validates the form. It never touches the network.
func (f Form) Request() (domain.OrderRequest, error) {
	errs := &fieldErrors{}

	req := domain.OrderRequest{
		Location:    strings.TrimSpace(f.Location),
		Destination: strings.TrimSpace(f.Destination),
		TypeOfTruck: strings.TrimSpace(f.TypeOfTruck),
		CompanyName: strings.TrimSpace(f.CompanyName),
		CargoType:   strings.TrimSpace(f.CargoType),
	}

	if s := strings.TrimSpace(f.NoOfTrucks); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			errs.add("no_of_trucks", "The no_of_trucks field must be an integer.")
		}
		req.NoOfTrucks = n
	} else {
		errs.add("no_of_trucks", "The no_of_trucks field is required.")
	}

	if s := strings.TrimSpace(f.CargoWeight); s != "" {
		w, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs.add("cargo_weight", "The cargo_weight field must be a number.")
		} else {
			req.CargoWeight = domain.NewWeight(w)
		}
	}

	req.PickupTime = parseTime(errs, "pickup_time", f.PickupTime)
	req.DeliveryTime = parseTime(errs, "delivery_time", f.DeliveryTime)

	if err := errs.err(); err != nil {
		return domain.OrderRequest{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.OrderRequest{}, err
	}
	return req, nil
}

func parseTime(errs *fieldErrors, field, raw string) domain.Timestamp {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Timestamp{}
	}
	if t, err := time.ParseInLocation(InputLayout, raw, time.Local); err == nil {
		return domain.NewTimestamp(t)
	}
	ts, err := domain.ParseTimestamp(raw)
	if err != nil {
		errs.add(field, "The "+field+" field must be a date in YYYY-MM-DD HH:mm:ss format.")
		return domain.Timestamp{}
	}
	return ts
}

type fieldErrors struct {
	first  string
	fields map[string][]string
}

func (e *fieldErrors) add(field, msg string) {
	if e.fields == nil {
		e.fields = make(map[string][]string)
	}
	e.fields[field] = append(e.fields[field], msg)
	if e.first == "" {
		e.first = msg
	}
}

func (e *fieldErrors) err() error {
	if e.first == "" {
		return nil
	}
	return &domain.ValidationError{Message: e.first, Fields: e.fields}
}
