// Пакет thumbstore — директория кэша миниатюр на диске.
// Наличие файла — единственный признак записи кэша: запись атомарна
// (temp → fsync → rename), частично записанный файл не виден читателям.
package thumbstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Ошибки хранилища миниатюр.
var (
	// ErrNotFound — файла нет в кэше.
	ErrNotFound = errors.New("миниатюра не найдена в кэше")
	// ErrInvalidName — имя файла выходит за пределы директории кэша.
	ErrInvalidName = errors.New("недопустимое имя файла кэша")
)

// Store — директория кэша миниатюр.
type Store struct {
	dir string
}

// New создаёт хранилище и директорию кэша, если её нет.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию кэша %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir возвращает путь директории кэша.
func (s *Store) Dir() string {
	return s.dir
}

// FileName возвращает имя файла миниатюры документа: {doc_id}.jpg.
func FileName(docID int64) string {
	return strconv.FormatInt(docID, 10) + ".jpg"
}

// Exists проверяет наличие файла в кэше.
func (s *Store) Exists(name string) bool {
	if validateName(name) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Save записывает файл через write во временный файл и атомарно
// переименовывает его в name. При ошибке временный файл удаляется.
func (s *Store) Save(name string, write func(w io.Writer) error) error {
	if err := validateName(name); err != nil {
		return err
	}
	// Директория могла быть пересоздана конкурентным Reset
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию кэша: %w", err)
	}

	fullPath := filepath.Join(s.dir, name)
	tmpPath := filepath.Join(s.dir, "."+name+"."+uuid.New().String()[:8]+".tmp")

	f, err := os.Create(tmpPath) //nolint:gosec // G304: имя проверено validateName
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
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

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Open открывает файл кэша для чтения. Вызывающий код обязан закрыть файл.
func (s *Store) Open(name string) (*os.File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name)) //nolint:gosec // G304: имя проверено validateName
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла кэша %s: %w", name, err)
	}
	return f, nil
}

// Reset удаляет все файлы кэша. Директория переименовывается в соседнюю
// .trash-*, на её месте создаётся пустая, затем старая удаляется.
// Директория отсутствует только на время rename.
func (s *Store) Reset() error {
	clean := filepath.Clean(s.dir)
	trash := filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+".trash-"+uuid.New().String()[:8])

	if err := os.Rename(clean, trash); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("ошибка переименования директории кэша: %w", err)
		}
		trash = ""
	}

	if err := os.MkdirAll(clean, 0o750); err != nil {
		return fmt.Errorf("ошибка создания директории кэша: %w", err)
	}

	if trash != "" {
		if err := os.RemoveAll(trash); err != nil {
			return fmt.Errorf("ошибка удаления старого кэша: %w", err)
		}
	}
	return nil
}

// validateName допускает только имя файла без пути и без ведущей точки.
func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
