package payment

import (
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSuccess, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusRefunded, false},
		{StatusSuccess, StatusRefunded, true},
		{StatusSuccess, StatusFailed, false},
		{StatusSuccess, StatusPending, false},
		{StatusFailed, StatusSuccess, false},
		{StatusRefunded, StatusSuccess, false},
		// 幂等重放
		{StatusSuccess, StatusSuccess, true},
		{StatusFailed, StatusFailed, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StatusPending) || IsTerminal(StatusSuccess) {
		t.Error("pending/success are not terminal")
	}
	if !IsTerminal(StatusFailed) || !IsTerminal(StatusRefunded) {
		t.Error("failed/refunded are terminal")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	src := JSON{"raw_status": "success", "amount_minor": float64(50000)}

	value, err := src.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var dst JSON
	if err := dst.Scan(value); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if dst["raw_status"] != "success" {
		t.Errorf("raw_status = %v", dst["raw_status"])
	}
	if dst["amount_minor"] != float64(50000) {
		t.Errorf("amount_minor = %v", dst["amount_minor"])
	}
}

func TestJSONScanHandlesStringAndNil(t *testing.T) {
	var j JSON
	if err := j.Scan(`{"k":"v"}`); err != nil {
		t.Fatalf("Scan(string) error = %v", err)
	}
	if j["k"] != "v" {
		t.Errorf("k = %v, want v", j["k"])
	}

	var empty JSON
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error = %v", err)
	}
	if empty == nil {
		t.Error("Scan(nil) should leave a usable empty map")
	}
}

func TestJSONEmptyValueIsNull(t *testing.T) {
	value, err := JSON{}.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if value != nil {
		t.Errorf("Value() = %v, want nil for empty map", value)
	}
}
