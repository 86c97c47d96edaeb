package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// documentVersion is the version written by this build. Documents without a
// version field are treated as version 0 and read the same way.
const documentVersion = 1

// document is the on-disk JSON shape of the ledger.
type document struct {
	Version    int                       `json:"version"`
	Uploads    map[string]documentRecord `json:"uploads"`
	Duplicates map[string][]string       `json:"duplicates"`
}

type documentRecord struct {
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	UploadDate string `json:"upload_date"`
	FileSize   int64  `json:"file_size"`
}

// uploadDateLayouts are tried in order when reading upload_date. Layouts
// without a zone are interpreted in local time.
var uploadDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseUploadDate(s string) (time.Time, bool) {
	for _, layout := range uploadDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// decodeDocument parses raw ledger bytes into the in-memory maps.
func decodeDocument(data []byte) (map[ContentHash]UploadRecord, map[ContentHash]map[ContentHash]struct{}, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decoding ledger document: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, nil, fmt.Errorf("%w: %d (newest known is %d)", ErrUnsupportedVersion, doc.Version, documentVersion)
	}

	uploads := make(map[ContentHash]UploadRecord, len(doc.Uploads))
	for key, rec := range doc.Uploads {
		hash := ContentHash(key)
		uploadedAt, ok := parseUploadDate(rec.UploadDate)
		var rawDate string
		if !ok {
			rawDate = rec.UploadDate
		}
		size := rec.FileSize
		if size < 0 {
			size = 0
		}
		uploads[hash] = UploadRecord{
			Hash:       hash,
			Filename:   rec.Filename,
			SourcePath: rec.Path,
			FileSize:   size,
			UploadedAt: uploadedAt,
			rawDate:    rawDate,
		}
	}

	duplicates := make(map[ContentHash]map[ContentHash]struct{}, len(doc.Duplicates))
	for key, list := range doc.Duplicates {
		hash := ContentHash(key)
		for _, other := range list {
			if ContentHash(other) == hash || other == "" {
				continue
			}
			set, ok := duplicates[hash]
			if !ok {
				set = make(map[ContentHash]struct{})
				duplicates[hash] = set
			}
			set[ContentHash(other)] = struct{}{}
		}
	}

	return uploads, duplicates, nil
}

// encodeDocument renders the ledger maps in the persisted format. Duplicate
// lists are sorted so repeated saves of the same state are byte-identical.
func encodeDocument(uploads map[ContentHash]UploadRecord, duplicates map[ContentHash]map[ContentHash]struct{}) ([]byte, error) {
	doc := document{
		Version:    documentVersion,
		Uploads:    make(map[string]documentRecord, len(uploads)),
		Duplicates: make(map[string][]string, len(duplicates)),
	}
	for hash, rec := range uploads {
		date := rec.rawDate
		if !rec.UploadedAt.IsZero() {
			date = rec.UploadedAt.Format(time.RFC3339)
		}
		doc.Uploads[string(hash)] = documentRecord{
			Filename:   rec.Filename,
			Path:       rec.SourcePath,
			UploadDate: date,
			FileSize:   rec.FileSize,
		}
	}
	for hash, set := range duplicates {
		list := make([]string, 0, len(set))
		for other := range set {
			list = append(list, string(other))
		}
		sort.Strings(list)
		doc.Duplicates[string(hash)] = list
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ledger document: %w", err)
	}
	return append(data, '\n'), nil
}
