package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PackageDirectory walks bookDir and writes every file into a new EPUB
// ZIP at epubPath, with the mimetype entry forced first and stored
// uncompressed per the OCF spec. Grounded on the teacher's createZIP
// and cross-checked against the mimetype-first pattern in
// 57c488fa_htol-fb2c's EPUBWriter.Write.
func PackageDirectory(bookDir, epubPath string) error {
	mimetypePath := filepath.Join(bookDir, "mimetype")
	if _, err := os.Stat(mimetypePath); err != nil {
		return fmt.Errorf("mimetype file missing from %s: %w", bookDir, err)
	}

	out, err := os.Create(epubPath)
	if err != nil {
		return fmt.Errorf("create epub file: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()

	mimeWriter, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("write mimetype entry: %w", err)
	}
	if _, err := mimeWriter.Write([]byte("application/epub+zip")); err != nil {
		return fmt.Errorf("write mimetype bytes: %w", err)
	}

	return filepath.Walk(bookDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || path == mimetypePath || strings.HasSuffix(path, ".epub") {
			return nil
		}

		relPath, err := filepath.Rel(bookDir, path)
		if err != nil {
			return err
		}
		// filepath.Rel can legitimately climb out of bookDir only if
		// path itself lies outside it, which filepath.Walk never
		// produces; this guard exists for defense against a future
		// caller handing PackageDirectory a symlinked bookDir.
		if strings.HasPrefix(relPath, "..") {
			return fmt.Errorf("refusing to package path outside book directory: %s", path)
		}
		zipEntryName := filepath.ToSlash(relPath)

		zipFile, err := w.Create(zipEntryName)
		if err != nil {
			return err
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(zipFile, src)
		return err
	})
}
