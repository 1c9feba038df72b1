package imagex

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// AvatarSize 头像边长（像素）
const AvatarSize = 256

// ErrUnsupportedImage 无法解码的图片
var ErrUnsupportedImage = errors.New("不支持的图片格式")

// NormalizeAvatar 解码 jpeg/png/webp，居中裁剪为正方形并编码为 WebP
func NormalizeAvatar(r io.Reader) ([]byte, error) {
	src, err := decode(r)
	if err != nil {
		return nil, err
	}

	dst := imaging.Fill(src, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, dst, &webp.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("WebP 编码失败: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	// webp 未注册到 image 包，先单独尝试
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrUnsupportedImage
	}
	return img, nil
}
