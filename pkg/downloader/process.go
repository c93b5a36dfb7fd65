package downloader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/shouni/gemini-image-kit/pkg/imgutil"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const DefaultQuality = 90

// Format は保存形式なのだ。
type Format string

const (
	FormatPNG Format = "png"
	FormatJPG Format = "jpg"
)

// Fit はリサイズ時の収め方です。
type Fit string

const (
	// FitInside は縦横比を保ったまま指定枠に収めるのだ。拡大はしないのだよ。
	FitInside Fit = "inside"
	// FitFill は縦横比を無視して指定サイズに伸縮するのだ。
	FitFill Fit = "fill"
)

// Resize は保存前の縮小指定です。Width と Height が両方 0 なら元のサイズのままなのだ。
type Resize struct {
	Width  int
	Height int
	Fit    Fit
}

func (r Resize) enabled() bool { return r.Width > 0 || r.Height > 0 }

func (o Options) validate() error {
	if o.OutputDir == "" {
		return errors.New("出力ディレクトリが指定されていません")
	}
	switch o.Format {
	case FormatPNG, FormatJPG:
	default:
		return fmt.Errorf("未対応の保存形式です: %q", o.Format)
	}
	switch o.Resize.Fit {
	case "", FitInside, FitFill:
	default:
		return fmt.Errorf("未対応のリサイズ方法です: %q", o.Resize.Fit)
	}
	if o.Resize.Width < 0 || o.Resize.Height < 0 {
		return fmt.Errorf("リサイズ指定が不正です: %dx%d", o.Resize.Width, o.Resize.Height)
	}
	return nil
}

// process はデコード・リサイズ・エンコードを行い、保存するバイト列と最終サイズを返すのだ。
func process(data []byte, opts Options) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	if opts.Resize.enabled() {
		img = resize(img, opts.Resize)
	}
	b := img.Bounds()

	switch opts.Format {
	case FormatJPG:
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, 0, 0, fmt.Errorf("中間 PNG のエンコードに失敗しました: %w", err)
		}
		out, err := imgutil.CompressToJPEG(buf.Bytes(), opts.Quality)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("JPEG への変換に失敗しました: %w", err)
		}
		return out, b.Dx(), b.Dy(), nil
	default:
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, 0, 0, fmt.Errorf("PNG のエンコードに失敗しました: %w", err)
		}
		return buf.Bytes(), b.Dx(), b.Dy(), nil
	}
}

func resize(src image.Image, r Resize) image.Image {
	w, h := targetSize(src.Bounds().Dx(), src.Bounds().Dy(), r)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// targetSize は元のサイズと指定から出力サイズを求めるのだ。
func targetSize(srcW, srcH int, r Resize) (int, int) {
	if srcW == 0 || srcH == 0 {
		return srcW, srcH
	}
	if r.Fit == FitFill {
		w, h := r.Width, r.Height
		if w == 0 {
			w = srcW
		}
		if h == 0 {
			h = srcH
		}
		return w, h
	}

	scale := 1.0
	if r.Width > 0 {
		scale = min(scale, float64(r.Width)/float64(srcW))
	}
	if r.Height > 0 {
		scale = min(scale, float64(r.Height)/float64(srcH))
	}
	w := max(1, int(float64(srcW)*scale+0.5))
	h := max(1, int(float64(srcH)*scale+0.5))
	return w, h
}
