package utils

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNoMatchInZip = errors.New("no matched member in zip")
)

// 唯一命名的子目录，供并发任务各自独占落盘
func GetUniqSubDir(parentPath string) (path string, err error) {
	path = filepath.Join(parentPath, uuid.NewString())
	err = os.Mkdir(path, os.ModePerm)
	return
}

// 解压zip中以指定后缀结尾的成员到dstDir，其余成员跳过；返回落盘路径，次序与suffixes一致
func UnzipMatched(zipFile, dstDir string, suffixes ...string) (paths []string, err error) {
	zr, err := zip.OpenReader(zipFile)
	if err != nil {
		return
	}
	defer zr.Close()
	paths = make([]string, len(suffixes))
	found := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		for i, suffix := range suffixes {
			if paths[i] != "" || !strings.HasSuffix(f.Name, suffix) {
				continue
			}
			var path string
			if path, err = writeMember(f, dstDir); err != nil {
				return
			}
			paths[i] = path
			found++
			break
		}
		if found == len(suffixes) {
			return
		}
	}
	err = ErrNoMatchInZip
	return
}

func writeMember(f *zip.File, dstDir string) (path string, err error) {
	src, err := f.Open()
	if err != nil {
		return
	}
	defer src.Close()
	path = filepath.Join(dstDir, filepath.Base(f.Name))
	dst, err := os.Create(path)
	if err != nil {
		return
	}
	_, err = io.Copy(dst, src)
	if e := dst.Close(); err == nil {
		err = e
	}
	return
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}
