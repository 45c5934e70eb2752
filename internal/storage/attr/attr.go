// Пакет attr — чтение и запись sidecar-файлов метаданных содержимого.
// Для каждого blob в <tenant>/documents/ существует <tenant>/metadata/<blobId>.json,
// который является единственным источником истины для хеша и флага deprecated.
// Все операции записи выполняются атомарно: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// SidecarSuffix — суффикс файла метаданных.
const SidecarSuffix = ".json"

// maxSidecarSize — максимальный допустимый размер sidecar (4 КБ).
const maxSidecarSize = 4096

// SidecarPath возвращает путь к sidecar для blob.
// Пример: ("/data/t1/metadata", "abc") → "/data/t1/metadata/abc.json"
func SidecarPath(metadataDir, blobID string) string {
	return filepath.Join(metadataDir, blobID+SidecarSuffix)
}

// BlobIDFromPath возвращает идентификатор blob из пути sidecar.
func BlobIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), SidecarSuffix)
}

// IsSidecar проверяет, является ли путь sidecar-файлом.
func IsSidecar(path string) bool {
	return strings.HasSuffix(path, SidecarSuffix)
}

// Write атомарно записывает метаданные в sidecar.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func Write(path string, rec *model.BlobRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	if len(data) > maxSidecarSize {
		return fmt.Errorf("размер sidecar (%d байт) превышает максимум (%d байт)", len(data), maxSidecarSize)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает и десериализует sidecar.
// Ошибка оборачивает os.ErrNotExist, если файла нет.
func Read(path string) (*model.BlobRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения sidecar %s: %w", path, err)
	}

	var rec model.BlobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации sidecar %s: %w", path, err)
	}

	return &rec, nil
}

// Delete удаляет sidecar. Возвращает nil, если файл уже не существует.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления sidecar %s: %w", path, err)
	}
	return nil
}

// ScanDir сканирует директорию metadata/ и возвращает все валидные sidecar.
// Не рекурсивный. Невалидные файлы возвращаются списком путей в skipped.
func ScanDir(dir string) (records []*model.BlobRecord, skipped []string, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+SidecarSuffix))
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	for _, path := range matches {
		rec, err := Read(path)
		if err != nil {
			skipped = append(skipped, path)
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, nil
}
