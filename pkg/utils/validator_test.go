package utils

import "testing"

func TestValidateInstrumentShape(t *testing.T) {
	tests := []struct {
		name       string
		instrument string
		wantErr    bool
	}{
		{"valid BANK_NIFTY", "BANK_NIFTY", false},
		{"valid GOLDM", "GOLDM", false},
		{"valid with digits", "NIFTY50", false},
		{"empty", "", true},
		{"lowercase", "bank_nifty", true},
		{"single char", "X", true},
		{"special chars", "BANK-NIFTY", true},
		{"too long", "ABCDEFGHIJKLMNOPQRSTUVWXYZ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstrumentShape(tt.instrument)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInstrumentShape(%q) error = %v, wantErr %v", tt.instrument, err, tt.wantErr)
			}
		})
	}
}

func TestValidateKnownInstrument(t *testing.T) {
	known := []string{"BANK_NIFTY", "GOLDM"}

	tests := []struct {
		name       string
		instrument string
		known      []string
		wantErr    bool
	}{
		{"known instrument", "BANK_NIFTY", known, false},
		{"unknown instrument", "SILVERM", known, true},
		{"bad shape even if list empty", "bad-shape", nil, true},
		{"empty known list only checks shape", "ANYTHING", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKnownInstrument(tt.instrument, tt.known)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKnownInstrument(%q, %v) error = %v, wantErr %v", tt.instrument, tt.known, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSignalKind(t *testing.T) {
	known := []string{"BASE_ENTRY", "EXIT"}

	if err := ValidateSignalKind("EXIT", known); err != nil {
		t.Errorf("ValidateSignalKind(EXIT) = %v, want nil", err)
	}
	if err := ValidateSignalKind("BOGUS", known); err == nil {
		t.Error("ValidateSignalKind(BOGUS) = nil, want error")
	}
}

func TestValidatePrice(t *testing.T) {
	if err := ValidatePrice(100.5); err != nil {
		t.Errorf("ValidatePrice(100.5) = %v, want nil", err)
	}
	if err := ValidatePrice(0); err == nil {
		t.Error("ValidatePrice(0) = nil, want error")
	}
	if err := ValidatePrice(-1); err == nil {
		t.Error("ValidatePrice(-1) = nil, want error")
	}
}

func TestValidateSignalStructure(t *testing.T) {
	knownInstruments := []string{"BANK_NIFTY"}
	knownKinds := []string{"BASE_ENTRY", "EXIT"}

	tests := []struct {
		name    string
		s       SignalStructure
		wantErr bool
	}{
		{"valid", SignalStructure{Instrument: "BANK_NIFTY", Kind: "BASE_ENTRY", Price: 100}, false},
		{"unknown instrument", SignalStructure{Instrument: "GOLDM", Kind: "BASE_ENTRY", Price: 100}, true},
		{"unknown kind", SignalStructure{Instrument: "BANK_NIFTY", Kind: "BOGUS", Price: 100}, true},
		{"bad price", SignalStructure{Instrument: "BANK_NIFTY", Kind: "BASE_ENTRY", Price: 0}, true},
		{"every field invalid at once", SignalStructure{Instrument: "bad", Kind: "BOGUS", Price: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignalStructure(tt.s, knownInstruments, knownKinds)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSignalStructure(%+v) error = %v, wantErr %v", tt.s, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSignalStructure_AggregatesAllFailures(t *testing.T) {
	err := ValidateSignalStructure(SignalStructure{Instrument: "bad", Kind: "BOGUS", Price: -1}, []string{"BANK_NIFTY"}, []string{"EXIT"})
	if err == nil {
		t.Fatal("expected an aggregated error")
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 3 {
		t.Errorf("expected 3 field failures, got %d: %v", len(errs), errs)
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors

	errs.Add("field1", "error1")
	errs.Add("field2", "error2")

	if !errs.HasErrors() {
		t.Error("ValidationErrors.HasErrors() = false, want true")
	}
	if errs.Error() == "" {
		t.Error("ValidationErrors.Error() should not be empty")
	}
	if len(errs) != 2 {
		t.Errorf("ValidationErrors length = %d, want 2", len(errs))
	}
}

func TestValidationErrorsAddError(t *testing.T) {
	var errs ValidationErrors

	errs.AddError("field1", nil)
	if errs.HasErrors() {
		t.Error("ValidationErrors.AddError(nil) should not add error")
	}

	errs.AddError("field2", ErrInvalidInstrument)
	if !errs.HasErrors() {
		t.Error("ValidationErrors.AddError(err) should add error")
	}
}

func BenchmarkValidateSignalStructure(b *testing.B) {
	known := []string{"BANK_NIFTY", "GOLDM"}
	kinds := []string{"BASE_ENTRY", "EXIT"}
	s := SignalStructure{Instrument: "BANK_NIFTY", Kind: "BASE_ENTRY", Price: 100}
	for i := 0; i < b.N; i++ {
		ValidateSignalStructure(s, known, kinds)
	}
}
