package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
)

var errMalformedBody = errors.New("malformed response body")

var tokenPaths = []string{"token", "data.token", "access_token"}

func tokenFrom(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errMalformedBody
	}
	for _, path := range tokenPaths {
		if res := gjson.GetBytes(body, path); res.Type == gjson.String && res.Str != "" {
			return res.Str, nil
		}
	}
	return "", nil
}

// recordFrom accepts {data: {...}}, {order: {...}} or the bare record.
// An empty body means the server acknowledged without echoing the order.
func recordFrom(body []byte, req domain.OrderRequest) (*domain.OrderRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &domain.OrderRecord{OrderRequest: req}, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, errMalformedBody
	}

	raw := body
	for _, path := range []string{"data", "order"} {
		if res := gjson.GetBytes(body, path); res.IsObject() {
			raw = []byte(res.Raw)
			break
		}
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return nil, fmt.Errorf("%w: expected an order object", errMalformedBody)
	}

	var rec domain.OrderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return &rec, nil
}

// recordsFrom reads the {data: [...]} envelope. A missing or null data
// field is an empty list.
func recordsFrom(body []byte) ([]domain.OrderRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformedBody
	}

	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		list = root.Get("data")
	}

	switch {
	case !list.Exists() || list.Type == gjson.Null:
		return []domain.OrderRecord{}, nil
	case !list.IsArray():
		return nil, fmt.Errorf("%w: data is not a list", errMalformedBody)
	}

	orders := make([]domain.OrderRecord, 0, len(list.Array()))
	if err := json.Unmarshal([]byte(list.Raw), &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// messageFrom picks the most specific human readable message of an error body.
func messageFrom(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message").String(); msg != "" {
			return msg
		}
		if msg := firstFieldError(gjson.GetBytes(body, "errors")); msg != "" {
			return msg
		}
		if msg := gjson.GetBytes(body, "error").String(); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

func firstFieldError(errs gjson.Result) string {
	var msg string
	switch {
	case errs.IsObject():
		errs.ForEach(func(_, value gjson.Result) bool {
			msg = firstString(value)
			return msg == ""
		})
	case errs.IsArray():
		for _, value := range errs.Array() {
			if msg = firstString(value); msg != "" {
				break
			}
		}
	}
	return msg
}

func firstString(v gjson.Result) string {
	if v.IsArray() {
		for _, item := range v.Array() {
			if s := item.String(); s != "" {
				return s
			}
		}
		return ""
	}
	return v.String()
}

func fieldErrorsFrom(body []byte) map[string][]string {
	errs := gjson.GetBytes(body, "errors")
	if !errs.IsObject() {
		return nil
	}

	fields := make(map[string][]string)
	errs.ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			for _, item := range value.Array() {
				fields[key.String()] = append(fields[key.String()], item.String())
			}
		} else {
			fields[key.String()] = append(fields[key.String()], value.String())
		}
		return true
	})
	return fields
}
