package contentstore

import (
	"mime"
	"strings"
)

// DefaultMimeType — MIME-тип содержимого без объявленного типа.
const DefaultMimeType = "application/octet-stream"

// fallbackExtension — расширение для неизвестных MIME-типов.
const fallbackExtension = ".bin"

// extensions — соответствие MIME-типа расширению файла в documents/.
var extensions = map[string]string{
	"application/xml":       ".xml",
	"text/xml":              ".xml",
	"application/hl7-v3":    ".xml",
	"application/fhir+xml":  ".xml",
	"application/fhir+json": ".json",
	"application/json":      ".json",
	"application/pdf":       ".pdf",
	"text/plain":            ".txt",
	"text/html":             ".html",
	"image/jpeg":            ".jpg",
	"image/png":             ".png",
	"image/tiff":            ".tif",
	"application/dicom":     ".dcm",
}

// NormalizeMimeType приводит MIME-тип к виду без параметров в нижнем регистре.
// Пустой или нераспознаваемый тип → application/octet-stream.
func NormalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return DefaultMimeType
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return DefaultMimeType
	}
	return mediaType
}

// ExtensionFor возвращает расширение файла для MIME-типа.
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[NormalizeMimeType(mimeType)]; ok {
		return ext
	}
	return fallbackExtension
}
