package validation

import (
	"strings"
	"testing"
)

type portSpec struct {
	Name      string `validate:"required,cident"`
	Signature string `validate:"required,dsg"`
}

type nodeSpec struct {
	Name    string     `validate:"required,apxname"`
	Provide []portSpec `validate:"dive"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name        string
		spec        nodeSpec
		expectError bool
		errorField  string
	}{
		{
			name:        "Valid spec",
			spec:        nodeSpec{Name: "TestNode1", Provide: []portSpec{{Name: "TestSignal1", Signature: "S"}}},
			expectError: false,
		},
		{
			name:        "Missing node name",
			spec:        nodeSpec{},
			expectError: true,
			errorField:  "Name",
		},
		{
			name:        "Quote in node name",
			spec:        nodeSpec{Name: `Bad"Name`},
			expectError: true,
			errorField:  "Name",
		},
		{
			name:        "Port name is not an identifier",
			spec:        nodeSpec{Name: "N", Provide: []portSpec{{Name: "1st", Signature: "C"}}},
			expectError: true,
			errorField:  "Provide[0].Name",
		},
		{
			name:        "Port signature is not a signature",
			spec:        nodeSpec{Name: "N", Provide: []portSpec{{Name: "P", Signature: "Q"}}},
			expectError: true,
			errorField:  "Signature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.spec)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorField) {
					t.Errorf("Expected error mentioning %s, got %v", tt.errorField, err)
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"TestNode1", true},
		{"_private", true},
		{"", false},
		{"with space", false},
		{"dash-name", false},
		{strings.Repeat("a", MaxNameLength+1), false},
	}

	for _, tt := range tests {
		err := ValidateIdentifier(tt.name)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateIdentifier(%.20q) = %v, want valid=%v", tt.name, err, tt.valid)
		}
	}
}

func TestValidateStruct_Nil(t *testing.T) {
	if err := ValidateStruct(nil); err == nil {
		t.Error("Expected error for nil value")
	}
}

func TestValidateStruct_ReportsEveryField(t *testing.T) {
	spec := nodeSpec{Name: "", Provide: []portSpec{{Name: "ok", Signature: "Q"}, {Name: "2x", Signature: "C"}}}
	errs, ok := AsErrors(ValidateStruct(&spec))
	if !ok {
		t.Fatal("expected Errors")
	}
	want := []string{"Name", "Provide[0].Signature", "Provide[1].Name"}
	got := errs.Fields()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
	if errs[0].Config != "nodeSpec" {
		t.Errorf("Config = %q, want nodeSpec", errs[0].Config)
	}
}
