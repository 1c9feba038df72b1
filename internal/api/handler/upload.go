package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/service"
)

// MultipartMemory 解析 multipart 时保留在内存中的上限，超出部分落临时文件
const MultipartMemory = 8 << 20

// formUploads 读取 multipart 中 field 字段的全部文件；调用方需在用完后执行 closeAll
func formUploads(c *gin.Context, field string) ([]service.Upload, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, err
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = form.RemoveAll()
	}

	headers := form.File[field]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		uploads = append(uploads, service.Upload{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      f,
		})
	}
	return uploads, closeAll, nil
}
