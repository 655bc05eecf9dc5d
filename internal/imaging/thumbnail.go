// Пакет imaging — построение JPEG-миниатюр из содержимого документов EDMS.
// Поддерживаются JPEG, PNG, GIF, TIFF, BMP и WebP.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	// Декодеры регистрируются в image.Decode
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Ошибки построения миниатюр.
var (
	// ErrDecode — байты не являются изображением поддерживаемого формата.
	ErrDecode = errors.New("не удалось декодировать изображение")
	// ErrEncode — ошибка кодирования JPEG.
	ErrEncode = errors.New("не удалось закодировать JPEG")
)

// DefaultMaxPixels — предел площади исходного изображения по умолчанию
// (около 90 Мпикс).
const DefaultMaxPixels = 89_478_485

// Options — параметры миниатюры.
type Options struct {
	// MaxSide — максимальный размер стороны, px
	MaxSide int
	// Quality — качество JPEG (1-100)
	Quality int
	// MaxPixels — предел width*height исходного изображения (0 — DefaultMaxPixels)
	MaxPixels int
}

// Thumbnail декодирует data, уменьшает изображение с сохранением пропорций
// так, чтобы ни одна сторона не превышала MaxSide, и пишет JPEG в w.
// Изображения меньше MaxSide не увеличиваются. Прозрачность заливается белым.
// Размеры проверяются по заголовку до декодирования: изображение площадью
// больше MaxPixels отклоняется с ErrDecode без выделения памяти под пиксели.
func Thumbnail(w io.Writer, data []byte, opts Options) error {
	if err := checkPixels(data, opts.MaxPixels); err != nil {
		return err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: пустое изображение %s", ErrDecode, format)
	}

	width, height := fitSize(b.Dx(), b.Dy(), opts.MaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	if err := jpeg.Encode(w, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return nil
}

// checkPixels читает заголовок изображения и сверяет площадь с пределом.
func checkPixels(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(limit) {
		return fmt.Errorf("%w: %s %dx%d превышает лимит %d пикселей",
			ErrDecode, format, cfg.Width, cfg.Height, limit)
	}
	return nil
}

// fitSize вписывает (w, h) в квадрат maxSide с сохранением пропорций.
// Стороны не меньше 1 px.
func fitSize(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		return maxSide, max(nh, 1)
	}
	nw := w * maxSide / h
	return max(nw, 1), maxSide
}
