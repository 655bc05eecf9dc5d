package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/edms-catalog/internal/domain/model"
)

// documentColumns — столбцы профиля для SELECT-запросов.
const documentColumns = `docnumber, abstract, author, creation_date`

// Scope — базовый предикат выборки: популяция документов реестра.
type Scope struct {
	// MinDocNumber — нижняя граница номера документа (включительно)
	MinDocNumber int64
	// FormCode — код формы профиля
	FormCode int
}

// SearchParams — параметры поиска документов.
// nil и пустые значения = фильтр не применяется.
type SearchParams struct {
	// Terms — слова, каждое должно входить в аннотацию (ILIKE, AND)
	Terms []string
	// DateFrom — дата создания не раньше (включительно)
	DateFrom *time.Time
	// DateTo — дата создания не позже (включительно)
	DateTo *time.Time
	// Limit — количество результатов
	Limit int
	// Offset — смещение
	Offset int
}

// DocumentRepository — интерфейс доступа к профилям документов.
type DocumentRepository interface {
	// Search возвращает страницу документов по убыванию номера
	// и общее количество совпадений до пагинации.
	Search(ctx context.Context, params SearchParams) ([]*model.DocumentRecord, int, error)
	// GetAbstract возвращает текущую аннотацию документа (nil, если NULL)
	// или ErrNotFound.
	GetAbstract(ctx context.Context, docID int64) (*string, error)
	// CompareAndSetAbstract записывает аннотацию, только если текущее
	// значение совпадает с old. Иначе — ErrConflict.
	CompareAndSetAbstract(ctx context.Context, docID int64, old *string, value string) error
}

// documentRepo — реализация DocumentRepository через pgx.
type documentRepo struct {
	db    DBTX
	scope Scope
}

// NewDocumentRepository создаёт репозиторий профилей.
func NewDocumentRepository(db DBTX, scope Scope) DocumentRepository {
	return &documentRepo{db: db, scope: scope}
}

// Search выполняет поиск документов с фильтрами и пагинацией.
// Сначала считается общее количество: если окно пагинации за пределами
// результатов, запрос данных не выполняется.
func (r *documentRepo) Search(ctx context.Context, params SearchParams) ([]*model.DocumentRecord, int, error) {
	where, args := buildSearchWhere(r.scope, params, 1)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM profile %s`, where)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта документов: %w", err)
	}
	if total == 0 || params.Offset >= total {
		return []*model.DocumentRecord{}, total, nil
	}

	argNum := len(args) + 1
	dataQuery := fmt.Sprintf(
		`SELECT %s FROM profile %s ORDER BY docnumber DESC LIMIT $%d OFFSET $%d`,
		documentColumns, where, argNum, argNum+1,
	)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска документов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.DocumentRecord, 0, params.Limit)
	for rows.Next() {
		d := &model.DocumentRecord{}
		if err := rows.Scan(&d.DocID, &d.Abstract, &d.Author, &d.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	return result, total, nil
}

// GetAbstract возвращает аннотацию документа или ErrNotFound.
func (r *documentRepo) GetAbstract(ctx context.Context, docID int64) (*string, error) {
	var abstract *string
	err := r.db.QueryRow(ctx,
		`SELECT abstract FROM profile WHERE docnumber = $1`, docID,
	).Scan(&abstract)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения аннотации: %w", err)
	}
	return abstract, nil
}

// CompareAndSetAbstract — условное обновление аннотации.
// IS NOT DISTINCT FROM корректно сравнивает и NULL.
func (r *documentRepo) CompareAndSetAbstract(ctx context.Context, docID int64, old *string, value string) error {
	query := `
		UPDATE profile
		SET abstract = $1
		WHERE docnumber = $2 AND abstract IS NOT DISTINCT FROM $3`

	tag, err := r.db.Exec(ctx, query, value, docID, old)
	if err != nil {
		return fmt.Errorf("ошибка обновления аннотации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// buildSearchWhere строит WHERE-условие и аргументы для поиска документов.
// Базовый предикат scope присутствует всегда.
// startArg — номер первого $-параметра.
func buildSearchWhere(scope Scope, params SearchParams, startArg int) (whereClause string, args []any) {
	argNum := startArg

	conditions := []string{
		fmt.Sprintf("docnumber >= $%d", argNum),
		fmt.Sprintf("form = $%d", argNum+1),
	}
	args = append(args, scope.MinDocNumber, scope.FormCode)
	argNum += 2

	// Каждое слово — подстрока аннотации без учёта регистра
	for _, term := range params.Terms {
		if term == "" {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("abstract ILIKE $%d", argNum))
		args = append(args, "%"+escapeLike(term)+"%")
		argNum++
	}

	if params.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("creation_date >= $%d", argNum))
		args = append(args, *params.DateFrom)
		argNum++
	}

	if params.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("creation_date <= $%d", argNum))
		args = append(args, *params.DateTo)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// likeEscaper экранирует спецсимволы шаблона LIKE (escape-символ по умолчанию — \).
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
