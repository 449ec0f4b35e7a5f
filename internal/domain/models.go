package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Session is the client-side record of being authenticated.
// It is identified solely by its bearer token.
type Session struct {
	Token string
}

func (s Session) IsZero() bool {
	return s.Token == ""
}

func (s Session) Same(other Session) bool {
	return s.Token == other.Token
}

// String never prints the token itself.
func (s Session) String() string {
	if s.IsZero() {
		return "session(absent)"
	}
	return fmt.Sprintf("session(len=%d)", len(s.Token))
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Profile struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	PhoneNumber          string `json:"phone_number"`
	Address              string `json:"address"`
}

// OrderRequest is a truck request authored by the operator.
type OrderRequest struct {
	Location     string    `json:"location" validate:"required"`
	Destination  string    `json:"destination" validate:"required"`
	NoOfTrucks   int       `json:"no_of_trucks" validate:"gt=0"`
	TypeOfTruck  string    `json:"type_of_truck,omitempty"`
	CompanyName  string    `json:"company_name,omitempty"`
	CargoType    string    `json:"cargo_type" validate:"required"`
	CargoWeight  *Weight   `json:"cargo_weight,omitempty" validate:"omitempty,gte=0"`
	PickupTime   Timestamp `json:"pickup_time" validate:"required"`
	DeliveryTime Timestamp `json:"delivery_time" validate:"required"`
}

// OrderRecord is the server's copy of an order. Status is opaque to the client.
type OrderRecord struct {
	ID RecordID `json:"id"`
	OrderRequest
	Status string `json:"status"`
}

// RecordID holds server identifiers that may arrive as JSON numbers or strings.
type RecordID string

func (id RecordID) String() string {
	return string(id)
}

func (id RecordID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	// Only canonical integers go out bare; "007" or "+5" stay strings.
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid record id %s: %w", data, err)
	}
	*id = RecordID(n.String())
	return nil
}

// Weight is a cargo weight. Servers backed by decimal columns send it as a string.
type Weight float64

func NewWeight(v float64) *Weight {
	w := Weight(v)
	return &w
}

func (w Weight) String() string {
	return strconv.FormatFloat(float64(w), 'f', -1, 64)
}

func (w *Weight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*w = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid cargo weight %q: %w", s, err)
		}
		*w = Weight(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w = Weight(v)
	return nil
}

// Notice is the single dismissible message a workflow leaves for the operator.
type Notice struct {
	Title   string
	Message string
}

func (n Notice) IsZero() bool {
	return n.Title == "" && n.Message == ""
}

func (n Notice) String() string {
	if n.Message == "" {
		return n.Title
	}
	return n.Title + ": " + n.Message
}
