// Package artifact is the external artifact subsystem (spec §4.7, "C9"): it
// locates a CI run's uploaded artifacts, downloads and unpacks the one a
// gate asked for, and parses SARIF, ESLint-JSON, and Ruff-JSON reports into
// a normalized finding list. archive/zip is used directly (stdlib) because
// none of the example repos import a third-party ZIP library — the teacher's
// own export command (internal/cli/export_archive.go) also uses archive/zip,
// alongside archive/tar and compress/gzip, which this package does not need.
package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/policyforge/engine/internal/gatekit"
)

// Severity is the normalized finding severity (spec §4.7).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one normalized entry from a parsed artifact, regardless of its
// original format.
type Finding struct {
	RuleID   string
	Message  string
	Path     string
	Line     int
	Column   int
	Severity Severity
}

// Locator finds and downloads the raw bytes of a named artifact produced by
// the CI run for a head SHA.
type Locator struct {
	Forge     gatekit.Forge
	MaxSizeMB int
}

// maxArtifactEntrySize bounds a single decompressed file inside the
// archive, independent of the overall download-size guard, to avoid a
// decompression-bomb style entry inflating memory past the configured cap.
const maxArtifactEntrySize = 64 * 1024 * 1024

// Locate finds the named artifact for a head SHA and returns its raw bytes,
// enforcing the size guard before it ever downloads the body (spec §4.7:
// "never download past the configured cap"). ciRunID pins the lookup to a
// specific CI run when the caller already knows which one it's reacting to
// (spec §4.9 phase 2); an empty ciRunID leaves the provider's own
// most-relevant-run selection in charge (spec §4.6).
func (l *Locator) Locate(ctx context.Context, headSHA, ciRunID, artifactName string) ([]byte, error) {
	artifacts, err := l.Forge.ListArtifacts(ctx, headSHA, ciRunID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %q: %w", headSHA, err)
	}

	var match *gatekit.Artifact
	for i := range artifacts {
		if artifacts[i].Name == artifactName {
			match = &artifacts[i]
			break
		}
	}
	if match == nil {
		return nil, ErrMissingArtifact
	}

	maxBytes := int64(l.MaxSizeMB) * 1024 * 1024
	if l.MaxSizeMB > 0 && match.SizeBytes > maxBytes {
		return nil, ErrArtifactTooLarge
	}

	data, err := l.Forge.DownloadArtifact(ctx, *match)
	if err != nil {
		return nil, fmt.Errorf("download artifact %q: %w", artifactName, err)
	}
	if l.MaxSizeMB > 0 && int64(len(data)) > maxBytes {
		return nil, ErrArtifactTooLarge
	}
	return data, nil
}

// ExtractJSONFile unzips a downloaded artifact archive and returns the bytes
// of the first entry matching fileName (case-insensitive basename match).
func ExtractJSONFile(archiveBytes []byte, fileName string) ([]byte, error) {
	zr, err := openZip(archiveBytes)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if strings.EqualFold(path.Base(f.Name), fileName) {
			return readZipEntry(f)
		}
	}
	return nil, ErrMissingArtifact
}

// reportEntryPattern is the fallback selection rule when with.artifact_path
// is not set: the first entry whose name ends in .json or .sarif,
// case-insensitively (spec §4.7).
var reportEntryPattern = regexp.MustCompile(`(?i)\.(json|sarif)$`)

// SelectEntry returns the bytes of the zip entry whose full name exactly
// matches entryPath, for when a gate's with.artifact_path pins a specific
// file (spec §4.7: "the entry must match exactly; otherwise error").
func SelectEntry(archiveBytes []byte, entryPath string) ([]byte, error) {
	zr, err := openZip(archiveBytes)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name == entryPath {
			return readZipEntry(f)
		}
	}
	return nil, ErrMissingArtifact
}

// SelectFirstReportEntry returns the name and bytes of the first zip entry
// matching \.(json|sarif)$, in archive order, for when a gate has no
// with.artifact_path configured (spec §4.7).
func SelectFirstReportEntry(archiveBytes []byte) (string, []byte, error) {
	zr, err := openZip(archiveBytes)
	if err != nil {
		return "", nil, err
	}
	for _, f := range zr.File {
		if reportEntryPattern.MatchString(f.Name) {
			data, err := readZipEntry(f)
			if err != nil {
				return "", nil, err
			}
			return f.Name, data, nil
		}
	}
	return "", nil, ErrMissingArtifact
}

func openZip(archiveBytes []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("open artifact zip: %w", ErrInvalidFormat)
	}
	return zr, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	limited := io.LimitReader(rc, maxArtifactEntrySize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read zip entry %q: %w", f.Name, err)
	}
	if int64(len(data)) > maxArtifactEntrySize {
		return nil, ErrArtifactTooLarge
	}
	return data, nil
}

// ParseFormat is the closed set of report formats a gate can request (spec §4.7).
type ParseFormat string

const (
	FormatSARIF      ParseFormat = "sarif"
	FormatESLintJSON ParseFormat = "eslint_json"
	FormatRuffJSON   ParseFormat = "ruff_json"
)

// Parse dispatches to the right parser by format and normalizes the result.
func Parse(format ParseFormat, data []byte) ([]Finding, error) {
	switch format {
	case FormatSARIF:
		return parseSARIF(data)
	case FormatESLintJSON:
		return parseESLintJSON(data)
	case FormatRuffJSON:
		return parseRuffJSON(data)
	default:
		return nil, fmt.Errorf("%w: unknown artifact format %q", ErrInvalidFormat, format)
	}
}

func mustValidJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrParseError, err)
	}
	return nil
}
