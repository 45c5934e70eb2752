package contentstore

import "testing"

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"application/xml", ".xml"},
		{"application/xml; charset=utf-8", ".xml"},
		{"APPLICATION/PDF", ".pdf"},
		{"text/plain", ".txt"},
		{"application/fhir+json", ".json"},
		{"application/dicom", ".dcm"},
		{"application/x-unknown", ".bin"},
		{"", ".bin"},
		{"not a mime", ".bin"},
	}

	for _, tt := range tests {
		if got := ExtensionFor(tt.mime); got != tt.want {
			t.Errorf("ExtensionFor(%q) = %q, ожидалось %q", tt.mime, got, tt.want)
		}
	}
}

func TestNormalizeMimeType(t *testing.T) {
	if got := NormalizeMimeType(" text/XML; charset=utf-8 "); got != "text/xml" {
		t.Errorf("получено %q", got)
	}
	if got := NormalizeMimeType(""); got != DefaultMimeType {
		t.Errorf("пустой тип: получено %q", got)
	}
}
