package instrumentation

import "testing"

func TestExtractSenderDomain(t *testing.T) {
	tests := []struct {
		address  string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"brand@agency.io", "agency.io"},
		{"admin@company.org", "company.org"},
		{"test@subdomain.example.com", "subdomain.example.com"},
		{"invalid", "unknown"},
		{"", "unknown"},
		{"@", "unknown"},
		{"user@", "unknown"},
		{"@domain.com", "domain.com"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			result := ExtractSenderDomain(tt.address)
			if result != tt.expected {
				t.Errorf("ExtractSenderDomain(%q) = %q, want %q", tt.address, result, tt.expected)
			}
		})
	}
}

func TestOperationConstants(t *testing.T) {
	operations := map[string]string{
		OperationClassify: "classify",
		OperationExtract:  "extract",
		OperationCompile:  "compile",
		OperationList:     "list",
		OperationMarkRead: "mark_read",
		OperationLink:     "link",
		OperationUnlink:   "unlink",
	}

	for constant, expected := range operations {
		if constant != expected {
			t.Errorf("Operation constant = %q, want %q", constant, expected)
		}
	}
}
