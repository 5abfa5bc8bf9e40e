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

const (
	FILE_EXT_SHP = ".shp"
	FILE_EXT_CPG = ".cpg"
)

var (
	ErrNoShpInZip = errors.New("no shp in zip")
)

func GetUniqSubDir(parentPath string) (path string, err error) {
	path = filepath.Join(parentPath, uuid.NewString())
	err = os.Mkdir(path, os.ModePerm)
	return
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// Unzip extracts zipFile into dstDir, returning the paths of extracted files.
// Entries escaping dstDir are rejected.
func Unzip(zipFile, dstDir string) (files []string, err error) {
	zr, err := zip.OpenReader(zipFile)
	if err != nil {
		return
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Join(dstDir, filepath.Base(f.Name))
		if !strings.HasPrefix(name, filepath.Clean(dstDir)+string(os.PathSeparator)) {
			continue
		}
		var rc io.ReadCloser
		if rc, err = f.Open(); err != nil {
			return
		}
		var out *os.File
		if out, err = os.Create(name); err != nil {
			rc.Close()
			return
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return
		}
		files = append(files, name)
	}
	return
}

// GetShpInZip extracts a zipped shapefile into a unique sub dir of dstDir and
// returns the .shp path, plus whether its .cpg declares a UTF-8 charset.
func GetShpInZip(zipFile, dstDir string) (path string, utf8 bool, err error) {
	dir, err := GetUniqSubDir(dstDir)
	if err != nil {
		return
	}
	files, err := Unzip(zipFile, dir)
	if err != nil {
		return
	}
	var cpg string
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case FILE_EXT_SHP:
			path = f
		case FILE_EXT_CPG:
			if buf, e := os.ReadFile(f); e == nil {
				cpg = strings.ToUpper(strings.TrimSpace(string(buf)))
			}
		}
	}
	if path == "" {
		err = ErrNoShpInZip
		return
	}
	utf8 = strings.Contains(cpg, "UTF")
	return
}
