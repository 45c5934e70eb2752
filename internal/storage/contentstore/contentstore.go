// Пакет contentstore — хранилище содержимого документов по тенантам.
// Раскладка на диске (стабильный контракт для внешних инструментов):
//
//	<root>/<tenantId>/documents/<blobId><ext>
//	<root>/<tenantId>/metadata/<blobId>.json
//	<root>/<tenantId>/temp/
//
// Байты пишутся streaming-способом с подсчётом SHA-256 на лету,
// sidecar записывается только после документа. При каждом чтении
// хеш пересчитывается и сверяется с sidecar.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
	"github.com/bigkaa/goartstore/document-registry/internal/storage/attr"
)

// Имена поддиректорий тенанта.
const (
	DocumentsDir = "documents"
	MetadataDir  = "metadata"
	TempDir      = "temp"
)

// TenantConfigStore — источник конфигурации тенантов.
type TenantConfigStore interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	SetStoragePath(ctx context.Context, tenantID, storagePath string) error
}

// Layout — пути поддиректорий одного тенанта.
type Layout struct {
	Root      string
	Documents string
	Metadata  string
	Temp      string
}

// newLayout строит раскладку для корня тенанта.
func newLayout(root string) Layout {
	return Layout{
		Root:      root,
		Documents: filepath.Join(root, DocumentsDir),
		Metadata:  filepath.Join(root, MetadataDir),
		Temp:      filepath.Join(root, TempDir),
	}
}

// DocumentPath возвращает путь к байтам документа.
func (l Layout) DocumentPath(fileName string) string {
	return filepath.Join(l.Documents, fileName)
}

// SidecarPath возвращает путь к sidecar blob.
func (l Layout) SidecarPath(blobID string) string {
	return attr.SidecarPath(l.Metadata, blobID)
}

// BlobDescriptor — описание сохраняемого содержимого от вызывающей стороны.
type BlobDescriptor struct {
	MimeType     string
	OriginalName string
	UploadedBy   string
	// PreviousVersion — blob, который заменяет новое содержимое
	PreviousVersion string
}

// StoreResult — результат сохранения содержимого.
type StoreResult struct {
	BlobID   string
	FileName string
	MimeType string
	Size     int64
	// Hash — SHA-256 в hex
	Hash string
}

// Store — хранилище содержимого.
type Store struct {
	// root — корень по умолчанию (DR_DATA_DIR)
	root    string
	tenants TenantConfigStore
	// timeout — предел длительности одной операции
	timeout time.Duration
	logger  *slog.Logger
}

// New создаёт хранилище содержимого. Корневая директория создаётся,
// если она не существует.
func New(root string, tenants TenantConfigStore, timeout time.Duration, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", root, err)
	}

	return &Store{
		root:    root,
		tenants: tenants,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "contentstore")),
	}, nil
}

// Root возвращает корневую директорию хранилища.
func (s *Store) Root() string {
	return s.root
}

// Initialize гарантирует наличие documents/, metadata/ и temp/ тенанта.
// Если путь хранения тенанта ещё не задан, созданный путь сохраняется
// в конфигурацию тенанта.
func (s *Store) Initialize(ctx context.Context, tenantID string) error {
	_, err := s.initialize(ctx, tenantID)
	return err
}

func (s *Store) initialize(ctx context.Context, tenantID string) (Layout, error) {
	tenant, err := s.enabledTenant(ctx, tenantID)
	if err != nil {
		return Layout{}, err
	}

	storagePath := tenant.StoragePath
	if storagePath == "" {
		storagePath = filepath.Join(s.root, tenantID)
	}
	layout := newLayout(storagePath)

	for _, dir := range []string{layout.Documents, layout.Metadata, layout.Temp} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return Layout{}, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}

	if tenant.StoragePath == "" {
		if err := s.tenants.SetStoragePath(ctx, tenantID, storagePath); err != nil {
			return Layout{}, fmt.Errorf("не удалось сохранить путь хранения тенанта %s: %w", tenantID, err)
		}
		s.logger.Info("Хранилище тенанта инициализировано",
			slog.String("tenant_id", tenantID),
			slog.String("path", storagePath),
		)
	}

	return layout, nil
}

// Layout возвращает раскладку тенанта без создания директорий.
func (s *Store) Layout(ctx context.Context, tenantID string) (Layout, error) {
	tenant, err := s.enabledTenant(ctx, tenantID)
	if err != nil {
		return Layout{}, err
	}
	if tenant.StoragePath == "" {
		return newLayout(filepath.Join(s.root, tenantID)), nil
	}
	return newLayout(tenant.StoragePath), nil
}

// enabledTenant возвращает тенант, для которого включён реестр.
func (s *Store) enabledTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.RegistryEnabled {
		return nil, fmt.Errorf("%w: %s", model.ErrRegistryDisabled, tenantID)
	}
	return tenant, nil
}

// Store сохраняет содержимое под новым идентификатором blob.
// Паттерн: temp/ → запись + SHA-256 → fsync → rename в documents/ → sidecar.
// Ошибка (в том числе по таймауту) означает «не сохранено»: повтор
// выполняется целиком с новым идентификатором.
func (s *Store) Store(ctx context.Context, tenantID string, r io.Reader, desc BlobDescriptor) (*StoreResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	layout, err := s.initialize(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	blobID := uuid.New().String()
	mimeType := NormalizeMimeType(desc.MimeType)
	fileName := blobID + ExtensionFor(mimeType)
	docPath := layout.DocumentPath(fileName)
	tmpPath := filepath.Join(layout.Temp, fileName+".tmp")

	size, hash, err := writeStream(ctx, tmpPath, r)
	if err != nil {
		return nil, fmt.Errorf("содержимое не сохранено: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("содержимое не сохранено: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, docPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	rec := &model.BlobRecord{
		FileID:          blobID,
		FileName:        fileName,
		OriginalName:    desc.OriginalName,
		MimeType:        mimeType,
		Size:            size,
		Hash:            hash,
		CreatedAt:       time.Now().UTC(),
		UploadedBy:      desc.UploadedBy,
		PreviousVersion: desc.PreviousVersion,
	}
	if rec.OriginalName == "" {
		rec.OriginalName = fileName
	}

	// Sidecar пишется только после байтов, которые он описывает
	if err := attr.Write(layout.SidecarPath(blobID), rec); err != nil {
		os.Remove(docPath)
		return nil, fmt.Errorf("содержимое не сохранено, ошибка записи sidecar: %w", err)
	}

	s.logger.Debug("Содержимое сохранено",
		slog.String("tenant_id", tenantID),
		slog.String("blob_id", blobID),
		slog.Int64("size", size),
		slog.String("hash", hash),
	)

	return &StoreResult{
		BlobID:   blobID,
		FileName: fileName,
		MimeType: mimeType,
		Size:     size,
		Hash:     hash,
	}, nil
}

// Retrieve читает sidecar, затем байты документа, пересчитывает SHA-256
// и возвращает *model.IntegrityError при несовпадении.
// Непроверенные байты никогда не возвращаются.
func (s *Store) Retrieve(ctx context.Context, tenantID, blobID string) (*model.BlobRecord, []byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	layout, err := s.Layout(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	rec, err := readSidecar(layout, blobID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(layout.DocumentPath(rec.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &model.IntegrityError{BlobID: blobID, Expected: rec.Hash}
		}
		return nil, nil, fmt.Errorf("ошибка открытия содержимого %s: %w", blobID, err)
	}
	defer f.Close()

	hasher := sha256.New()
	data, err := io.ReadAll(io.TeeReader(&ctxReader{ctx: ctx, r: f}, hasher))
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения содержимого %s: %w", blobID, err)
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != rec.Hash {
		s.logger.Error("Нарушение целостности содержимого",
			slog.String("tenant_id", tenantID),
			slog.String("blob_id", blobID),
			slog.String("expected", rec.Hash),
			slog.String("actual", actual),
		)
		return nil, nil, &model.IntegrityError{BlobID: blobID, Expected: rec.Hash, Actual: actual}
	}

	return rec, data, nil
}

// Update сохраняет новое содержимое под новым идентификатором,
// проставляя previousVersion = oldBlobID. Старый blob не изменяется.
func (s *Store) Update(ctx context.Context, tenantID, oldBlobID string, r io.Reader, desc BlobDescriptor) (*StoreResult, error) {
	if _, err := s.Stat(ctx, tenantID, oldBlobID); err != nil {
		return nil, err
	}
	desc.PreviousVersion = oldBlobID
	return s.Store(ctx, tenantID, r, desc)
}

// Deprecate выставляет флаг deprecated и время в sidecar.
// Байты не перемещаются и не удаляются. Повторный вызов — no-op.
func (s *Store) Deprecate(ctx context.Context, tenantID, blobID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	layout, err := s.Layout(ctx, tenantID)
	if err != nil {
		return err
	}

	rec, err := readSidecar(layout, blobID)
	if err != nil {
		return err
	}
	if rec.Deprecated {
		return nil
	}

	now := time.Now().UTC()
	rec.Deprecated = true
	rec.DeprecatedAt = &now

	if err := attr.Write(layout.SidecarPath(blobID), rec); err != nil {
		return fmt.Errorf("ошибка обновления sidecar %s: %w", blobID, err)
	}
	return nil
}

// Delete удаляет sidecar и байты документа.
// Deprecated-содержимое удаляется только с force. Отсутствие файлов — успех.
func (s *Store) Delete(ctx context.Context, tenantID, blobID string, force bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	layout, err := s.Layout(ctx, tenantID)
	if err != nil {
		return err
	}

	rec, err := readSidecar(layout, blobID)
	if errors.Is(err, model.ErrNotFound) {
		// Sidecar уже удалён — дочищаем байты, если они остались
		return removeDocumentFiles(layout, blobID)
	}
	if err != nil {
		return err
	}

	if rec.Deprecated && !force {
		return fmt.Errorf("%w: blob %s", model.ErrDeprecatedRequiresForce, blobID)
	}

	// Sidecar удаляется первым, чтобы не ссылаться на отсутствующие байты
	if err := attr.Delete(layout.SidecarPath(blobID)); err != nil {
		return err
	}

	if err := os.Remove(layout.DocumentPath(rec.FileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления содержимого %s: %w", blobID, err)
	}

	s.logger.Info("Содержимое удалено",
		slog.String("tenant_id", tenantID),
		slog.String("blob_id", blobID),
		slog.Bool("force", force),
	)
	return nil
}

// Stat возвращает sidecar blob без чтения байтов.
func (s *Store) Stat(ctx context.Context, tenantID, blobID string) (*model.BlobRecord, error) {
	layout, err := s.Layout(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return readSidecar(layout, blobID)
}

// VerifyResult — результат проверки одного blob.
type VerifyResult struct {
	Record     *model.BlobRecord `json:"record"`
	ActualHash string            `json:"actual_hash"`
	ActualSize int64             `json:"actual_size"`
	// Missing — байты документа отсутствуют
	Missing bool `json:"missing"`
}

// HashOK сообщает, совпал ли пересчитанный хеш с sidecar.
func (v *VerifyResult) HashOK() bool {
	return !v.Missing && v.ActualHash == v.Record.Hash
}

// SizeOK сообщает, совпал ли размер с sidecar.
func (v *VerifyResult) SizeOK() bool {
	return !v.Missing && v.ActualSize == v.Record.Size
}

// Verify пересчитывает хеш и размер blob, не возвращая байты.
func (s *Store) Verify(ctx context.Context, tenantID, blobID string) (*VerifyResult, error) {
	layout, err := s.Layout(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rec, err := readSidecar(layout, blobID)
	if err != nil {
		return nil, err
	}
	return VerifyRecord(ctx, layout, rec)
}

// VerifyRecord пересчитывает хеш файла, описанного sidecar rec.
func VerifyRecord(ctx context.Context, layout Layout, rec *model.BlobRecord) (*VerifyResult, error) {
	res := &VerifyResult{Record: rec}

	f, err := os.Open(layout.DocumentPath(rec.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			res.Missing = true
			return res, nil
		}
		return nil, fmt.Errorf("ошибка открытия содержимого %s: %w", rec.FileID, err)
	}
	defer f.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return nil, fmt.Errorf("ошибка вычисления хеша %s: %w", rec.FileID, err)
	}

	res.ActualHash = hex.EncodeToString(hasher.Sum(nil))
	res.ActualSize = n
	return res, nil
}

// CleanTemp удаляет из temp/ тенанта файлы старше maxAge.
// Возвращает количество удалённых файлов.
func (s *Store) CleanTemp(ctx context.Context, tenantID string, maxAge time.Duration) (int, error) {
	layout, err := s.Layout(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(layout.Temp)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка чтения директории %s: %w", layout.Temp, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(layout.Temp, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("Не удалось удалить временный файл",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	return removed, nil
}

// withTimeout ограничивает операцию таймаутом хранилища.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// readSidecar читает sidecar blob. Идентификатор должен быть UUID,
// иначе blob считается несуществующим.
func readSidecar(layout Layout, blobID string) (*model.BlobRecord, error) {
	if _, err := uuid.Parse(blobID); err != nil {
		return nil, fmt.Errorf("%w: blob %q", model.ErrNotFound, blobID)
	}

	rec, err := attr.Read(layout.SidecarPath(blobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: blob %s", model.ErrNotFound, blobID)
		}
		return nil, err
	}
	return rec, nil
}

// removeDocumentFiles удаляет байты blob без sidecar (по шаблону <blobId>.*).
func removeDocumentFiles(layout Layout, blobID string) error {
	if _, err := uuid.Parse(blobID); err != nil {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(layout.Documents, blobID+".*"))
	if err != nil {
		return fmt.Errorf("ошибка поиска содержимого %s: %w", blobID, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("ошибка удаления содержимого %s: %w", m, err)
		}
	}
	return nil
}

// writeStream пишет поток во временный файл с подсчётом SHA-256 на лету.
// При ошибке временный файл удаляется.
func writeStream(ctx context.Context, tmpPath string, r io.Reader) (int64, string, error) {
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	tee := io.TeeReader(&ctxReader{ctx: ctx, r: r}, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
