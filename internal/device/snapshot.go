package device

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// SnapshotCamera 从外部抓帧程序刷新的图片文件读取画面。
type SnapshotCamera struct {
	path string
}

func NewSnapshotCamera(path string) *SnapshotCamera {
	return &SnapshotCamera{path: path}
}

// Ready 文件存在且非空时视为就绪。
func (c *SnapshotCamera) Ready() bool {
	if c.path == "" {
		return false
	}
	info, err := os.Stat(c.path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Frame 解码当前快照。
func (c *SnapshotCamera) Frame() (image.Image, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", c.path, err)
	}
	return img, nil
}
