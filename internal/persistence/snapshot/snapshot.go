package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"worldstate.ai/internal/world/diff"
	"worldstate.ai/internal/world/invariants"
	"worldstate.ai/internal/world/runtime"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	WorldID    string `json:"world_id"`
	Label      string `json:"label,omitempty"`
	ViewDigest string `json:"view_digest"`
}

// BundleV1 is the regression snapshot of one pipeline run. It holds plain
// data only; Timings is a map so its keys serialize sorted.
type BundleV1 struct {
	Header  Header             `json:"header"`
	View    runtime.WorldView  `json:"view"`
	Diff    *diff.WorldDiff    `json:"diff,omitempty"`
	Report  *invariants.Report `json:"report,omitempty"`
	Timings map[string]float64 `json:"timings_ms,omitempty"`
}

// Canonical returns the deterministic JSON encoding of b.
func Canonical(b BundleV1) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteBundle writes a header line followed by the JSON bundle, zstd
// compressed.
func WriteBundle(path string, b BundleV1) (err error) {
	if b.Header.Version == 0 {
		b.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(b.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	body, err := Canonical(b)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(body); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadBundle(path string) (BundleV1, error) {
	var b BundleV1
	f, err := os.Open(path)
	if err != nil {
		return b, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return b, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is repeated inside the body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return b, fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(&b); err != nil {
		return b, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Header.Version != Version {
		return b, fmt.Errorf("unsupported bundle version %d", b.Header.Version)
	}
	return b, nil
}

// ReadHeader reads only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
