package savestore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver/v4"

	"github.com/lk2023060901/simsave/internal/storage/compressor"
	"github.com/lk2023060901/simsave/internal/storage/serializer"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

const (
	// FormatVersion 为存档目录格式版本，主版本号不同的存档拒绝读取。
	FormatVersion = "1.0.0"

	manifestFile = "manifest.json"
	streamFile   = "objects.sav"
)

var currentFormat = semver.MustParse(FormatVersion)

// Manifest 描述一个存档单元，写在存档目录的 manifest.json 中。
type Manifest struct {
	Format      string    `json:"format"`
	Name        string    `json:"name"`
	Session     string    `json:"session"`
	CreatedAt   time.Time `json:"created_at"`
	Compression string    `json:"compression"`
	Sealing     string    `json:"sealing,omitempty"`
	Stream      string    `json:"stream"`
	// StreamBytes 为压缩前的对象流字节数。
	StreamBytes int64    `json:"stream_bytes"`
	Roots       int      `json:"roots"`
	RootIDs     []int    `json:"root_ids"`
	Objects     int      `json:"objects"`
	Backrefs    int      `json:"backrefs"`
	Tables      []string `json:"tables,omitempty"`
}

func streamFileName(compression string) string {
	if compression == compressor.KindZstd {
		return streamFile + ".zst"
	}
	return streamFile
}

// checkFormat 要求主版本一致且不高于当前版本。
func checkFormat(v string) error {
	parsed, err := semver.Parse(v)
	if err != nil {
		return merr.WrapErrSaveVersionMismatch(FormatVersion, v, "unparsable format version")
	}
	if parsed.Major != currentFormat.Major || parsed.GT(currentFormat) {
		return merr.WrapErrSaveVersionMismatch(FormatVersion, v)
	}
	return nil
}

var manifestCodec serializer.Serializer = serializer.JSONSerializer{Indent: "  "}

func writeManifest(dir string, m *Manifest) error {
	data, err := manifestCodec.Marshal(m)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, manifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return merr.WrapErrIoFailed(path, err)
	}
	return nil
}

// readManifest 读取并校验清单，文件缺失时返回 ErrSaveNotFound。
func readManifest(dir, name string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, merr.WrapErrSaveNotFound(name)
	}
	if err != nil {
		return nil, merr.WrapErrIoFailed(path, err)
	}
	m := &Manifest{}
	if err := manifestCodec.Unmarshal(data, m); err != nil {
		return nil, merr.MarkSaveCorrupted(name, merr.WrapErrSyntax("manifest json", err.Error(), merr.Position{}, path))
	}
	if err := checkFormat(m.Format); err != nil {
		return nil, err
	}
	if m.Roots != len(m.RootIDs) {
		return nil, merr.MarkSaveCorrupted(name, merr.WrapErrArityMismatch(m.Roots, len(m.RootIDs), "manifest root ids"))
	}
	return m, nil
}
