package card

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// ThumbnailMaxSide はサムネイルの長辺の上限（px）。
const ThumbnailMaxSide = 200

// Thumbnail はアスペクト比を保ったまま長辺がmaxSide以下になるよう縮小した画像を返す。
// 元画像が既に収まっている場合は拡大せず、同じ大きさのコピーを返す。
func Thumbnail(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := thumbnailSize(b.Dx(), b.Dy(), maxSide)

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// thumbnailSize は縮小後の幅と高さを返す。どちらの辺も1px未満にはしない。
func thumbnailSize(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}

// EncodeThumbnail はサムネイルを生成してPNGでエンコードする。
func EncodeThumbnail(src image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(src, ThumbnailMaxSide)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
