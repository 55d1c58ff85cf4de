package validator

import (
	"testing"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"abc", false},
		{" abc ", false},
	}
	for _, c := range cases {
		got := IsEmpty(c.input)
		if got != c.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestIsValidDate(t *testing.T) {
	valid := []string{"2023-01-01", "2000-12-31"}
	invalid := []string{"2023-13-01", "2023-01-32", "2023/01/01", "01-01-2023", ""}
	for _, s := range valid {
		_, ok := IsValidDate(s)
		if !ok {
			t.Errorf("IsValidDate(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		_, ok := IsValidDate(s)
		if ok {
			t.Errorf("IsValidDate(%q) = true, want false", s)
		}
	}
}

func TestIsInSlice(t *testing.T) {
	slice := []string{"a", "b", "c"}
	if !IsInSlice("a", slice) {
		t.Errorf("IsInSlice('a') = false, want true")
	}
	if IsInSlice("d", slice) {
		t.Errorf("IsInSlice('d') = true, want false")
	}
}

func TestIsValidIdentifier(t *testing.T) {
	valid := []string{"e1", "day-shift", "EMP_0042", "0195f3a2-7c1d-7e4b-9a3f-2b8c6d1e0f9a"}
	invalid := []string{"", "with space", "semi;colon", "0123456789012345678901234567890123456789012345678901234567890123456789"}
	for _, id := range valid {
		if !IsValidIdentifier(id) {
			t.Errorf("IsValidIdentifier(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if IsValidIdentifier(id) {
			t.Errorf("IsValidIdentifier(%q) = true, want false", id)
		}
	}
}

func TestIsValidTimeZone(t *testing.T) {
	valid := []string{"UTC", "Local"}
	invalid := []string{"", "Mars/Olympus", "GMT+25"}
	for _, tz := range valid {
		if !IsValidTimeZone(tz) {
			t.Errorf("IsValidTimeZone(%q) = false, want true", tz)
		}
	}
	for _, tz := range invalid {
		if IsValidTimeZone(tz) {
			t.Errorf("IsValidTimeZone(%q) = true, want false", tz)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "employee_id", Message: "employee_id is required"},
		{Field: "date", Message: "date must be in YYYY-MM-DD format"},
	}
	got := errs.Error()
	want := "employee_id: employee_id is required; date: date must be in YYYY-MM-DD format"
	if got != want {
		t.Errorf("ValidationErrors.Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_ToMap(t *testing.T) {
	errs := ValidationErrors{
		{Field: "employee_id", Message: "required"},
		{Field: "visible", Message: "required"},
	}
	got := errs.ToMap()
	want := map[string]string{"employee_id": "required", "visible": "required"}
	if len(got) != len(want) {
		t.Errorf("ValidationErrors.ToMap() length = %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ValidationErrors.ToMap()[%q] = %q, want %q", k, got[k], v)
		}
	}
}
