package jobfs

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteJSON writes v as indented JSON via a temp file and an atomic rename,
// so a crash mid-write leaves the prior durable copy readable.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "jobfs: marshal %s", filepath.Base(path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "jobfs: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "jobfs: temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "jobfs: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "jobfs: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "jobfs: close %s", tmpName)
	}
	return eris.Wrapf(os.Rename(tmpName, path), "jobfs: rename to %s", path)
}

// ReadJSON decodes the JSON file at path into v. Missing files surface as
// os.ErrNotExist for callers to translate.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "jobfs: read %s", path)
	}
	return eris.Wrapf(json.Unmarshal(data, v), "jobfs: unmarshal %s", path)
}

// AppendJSONL appends v as one JSON line. The file is opened O_APPEND so
// lines are never rewritten.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "jobfs: marshal line for %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "jobfs: mkdir %s", filepath.Dir(path))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "jobfs: open %s", path)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return eris.Wrapf(err, "jobfs: append %s", path)
	}
	return eris.Wrapf(f.Sync(), "jobfs: sync %s", path)
}

// ReadJSONL decodes every line of a JSONL file into values of type T.
// A missing file yields an empty slice.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "jobfs: open %s", path)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, eris.Wrapf(err, "jobfs: unmarshal line in %s", path)
		}
		out = append(out, item)
	}
	return out, eris.Wrapf(scanner.Err(), "jobfs: scan %s", path)
}

// CopyFile copies src to dst, creating parent directories as needed.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return eris.Wrapf(err, "jobfs: read %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "jobfs: mkdir for %s", dst)
	}
	return eris.Wrapf(os.WriteFile(dst, data, 0o644), "jobfs: write %s", dst)
}
