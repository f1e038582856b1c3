package sandboxfs

import (
	"archive/zip"
	"io"
	"os"
)

// ZipDirectory streams a ZIP archive of p's contents (entries relative
// to p) to w, using deflate level 6 as spec §4.2 requires.
func (fo *FileOps) ZipDirectory(p string, w io.Writer) error {
	abs, err := fo.Resolver.ResolveExisting(p)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, deflateLevel6)
	defer zw.Close()

	return walkFiles(abs, func(rel string, info os.FileInfo) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   rel,
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}

		src, err := os.Open(joinUnder(abs, rel))
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(fw, src)
		return err
	})
}

func joinUnder(root, rel string) string {
	if rel == "." {
		return root
	}
	return root + string(os.PathSeparator) + rel
}
