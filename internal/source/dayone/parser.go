package dayone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DefaultMaxJSONFiles  = 100
	DefaultMaxJSONBytes  = 500 * 1024 * 1024
	DefaultMaxEntries    = 100000
	maxJournalNameLength = 500
	fallbackJournalName  = "Imported Journal"
)

var (
	identifierPattern = regexp.MustCompile(`^[0-9a-fA-F-]{1,64}$`)

	photoExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic"}
	videoExtensions = []string{".mp4", ".avi", ".mov", ".webm", ".m4v"}
)

type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

type ParserLimits struct {
	MaxJSONFiles int
	MaxJSONBytes int64
	MaxEntries   int
}

func (l ParserLimits) withDefaults() ParserLimits {
	if l.MaxJSONFiles <= 0 {
		l.MaxJSONFiles = DefaultMaxJSONFiles
	}
	if l.MaxJSONBytes <= 0 {
		l.MaxJSONBytes = DefaultMaxJSONBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultMaxEntries
	}
	return l
}

type Parser struct {
	limits ParserLimits
}

func NewParser(limits ParserLimits) *Parser {
	return &Parser{limits: limits.withDefaults()}
}

// ParsedJournal pairs a manifest file with its decode outcome.
type ParsedJournal struct {
	Journal *Journal
	Name    string
	File    string
	Err     error
}

// ParseDir reads every top level *.json file of an extracted Day One
// container. A broken file fails only its own journal.
func (p *Parser) ParseDir(ctx context.Context, dir string) ([]ParsedJournal, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no JSON files found in Day One export")
	}
	if len(files) > p.limits.MaxJSONFiles {
		return nil, fmt.Errorf("too many JSON files in export: %d (max: %d)", len(files), p.limits.MaxJSONFiles)
	}
	sort.Strings(files)

	out := make([]ParsedJournal, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := journalName(file)
		j, err := p.parseFile(file, name)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip day one manifest",
				zap.String("file", filepath.Base(file)), zap.Error(err))
			out = append(out, ParsedJournal{Name: name, File: filepath.Base(file), Err: err})
			continue
		}
		logutil.GetLogger(ctx).Info("parsed day one journal",
			zap.String("journal", name), zap.Int("entries", len(j.Entries)), zap.Int("skipped", len(j.Skipped)))
		out = append(out, ParsedJournal{Journal: j, Name: name, File: filepath.Base(file)})
	}
	return out, nil
}

func journalName(file string) string {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if name == "" || len(name) > maxJournalNameLength {
		return fallbackJournalName
	}
	return name
}

func (p *Parser) parseFile(file, name string) (*Journal, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if info.Size() > p.limits.MaxJSONBytes {
		return nil, fmt.Errorf("JSON file too large: %d bytes (max: %d)", info.Size(), p.limits.MaxJSONBytes)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("JSON file %s must contain an object", filepath.Base(file))
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", filepath.Base(file), err)
	}
	if _, ok := probe["entries"]; !ok {
		return nil, fmt.Errorf("invalid Day One export format in %s: missing entries", filepath.Base(file))
	}
	export := &Export{}
	if err := json.Unmarshal(trimmed, export); err != nil {
		return nil, fmt.Errorf("invalid Day One export format in %s: %w", filepath.Base(file), err)
	}
	if len(export.Entries) > p.limits.MaxEntries {
		return nil, fmt.Errorf("too many entries in journal (max %d)", p.limits.MaxEntries)
	}

	j := &Journal{
		Name:           name,
		SourceFile:     filepath.Base(file),
		ExportMetadata: export.Metadata,
		ExportVersion:  exportVersion(export),
		Declared:       len(export.Entries),
	}
	for idx, raw := range export.Entries {
		entry, err := DecodeEntry(raw)
		if err != nil {
			j.Skipped = append(j.Skipped, fmt.Sprintf("entry %d: %v", idx+1, err))
			continue
		}
		j.Entries = append(j.Entries, entry)
	}
	return j, nil
}

func exportVersion(e *Export) string {
	if e.Version != nil && *e.Version != "" {
		return *e.Version
	}
	if len(e.Metadata) == 0 {
		return ""
	}
	var meta struct {
		Version interface{} `json:"version"`
	}
	if err := json.Unmarshal(e.Metadata, &meta); err != nil || meta.Version == nil {
		return ""
	}
	return fmt.Sprint(meta.Version)
}

// MediaRoot returns dir when it holds a photos or videos folder in either
// case, "" otherwise.
func MediaRoot(dir string) string {
	for _, name := range []string{"photos", "Photos", "videos", "Videos"} {
		if st, err := os.Stat(filepath.Join(dir, name)); err == nil && st.IsDir() {
			return dir
		}
	}
	return ""
}

// FindMedia locates an attachment file. Day One names files after the md5 of
// their content; the identifier is tried next, then any extension.
func FindMedia(root string, m *Media, kind MediaKind) string {
	if root == "" {
		return ""
	}
	var dirs, exts []string
	switch kind {
	case KindPhoto:
		dirs = []string{"photos", "Photos"}
		exts = photoExtensions
	case KindVideo:
		dirs = []string{"videos", "Videos"}
		exts = videoExtensions
	default:
		return ""
	}
	searchDir := ""
	for _, d := range dirs {
		if st, err := os.Stat(filepath.Join(root, d)); err == nil && st.IsDir() {
			searchDir = filepath.Join(root, d)
			break
		}
	}
	if searchDir == "" {
		return ""
	}

	candidates := make([]string, 0, 2)
	if h := m.Hash(); h != "" {
		candidates = append(candidates, h)
	}
	if identifierPattern.MatchString(m.Identifier) {
		candidates = append(candidates, m.Identifier)
	}
	for _, stem := range candidates {
		for _, ext := range exts {
			for _, variant := range []string{ext, strings.ToUpper(ext)} {
				p := filepath.Join(searchDir, stem+variant)
				if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
					return p
				}
			}
		}
	}
	for _, stem := range candidates {
		matches, err := filepath.Glob(filepath.Join(searchDir, stem+".*"))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		return matches[0]
	}
	return ""
}
