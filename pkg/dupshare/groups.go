package dupshare

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf16"

	"github.com/walteh/drivecp/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

// ParseGroups reads group definitions from CSV data. Two layouts are
// recognized, detected from the first data row:
//
//	last-name,first-name,email   one group per student, named "First Last"
//	group-name,email1,email2,... one group per row, duplicate names merged
//
// A first row whose expected email column has no '@' is treated as a
// header and skipped.
func ParseGroups(data []byte) (map[string][]string, error) {
	decoded, err := decodeBOM(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Errorf("parsing group CSV: %w", err)
	}

	groups := map[string][]string{}
	if len(records) == 0 {
		return groups, nil
	}

	first := records[0]
	n := len(first)
	if n < 2 ||
		(n == 2 && !strings.Contains(first[1], "@")) ||
		(n > 2 && !strings.Contains(first[2], "@")) {
		records = records[1:]
	}
	if len(records) == 0 {
		return groups, nil
	}

	head := records[0]
	groupStyle := len(head) != 3 || strings.Contains(head[1], "@")

	for _, row := range records {
		var name string
		var emails []string
		if groupStyle {
			if len(row) < 2 {
				continue
			}
			name = row[0]
			for _, field := range row[1:] {
				if strings.Contains(field, "@") {
					emails = append(emails, field)
				}
			}
		} else {
			if len(row) < 3 {
				continue
			}
			name = row[1] + " " + row[0]
			emails = []string{row[2]}
		}
		groups[name] = append(groups[name], emails...)
	}
	return groups, nil
}

// LoadGroups reads groups from source: "-" for stdin, a local file path, or
// a store object ID whose content is fetched as CSV (spreadsheets are
// exported).
func LoadGroups(ctx context.Context, collab remote.Collaborator, source string) (map[string][]string, error) {
	var data []byte
	var err error
	switch {
	case source == "-":
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Errorf("reading groups from stdin: %w", err)
		}
	case fileExists(source):
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, errors.Errorf("reading group file: %w", err)
		}
	case remote.IsObjectID(source):
		data, err = collab.FetchCSV(ctx, source)
		if err != nil {
			return nil, errors.Errorf("fetching group object %s: %w", source, err)
		}
	default:
		return nil, errors.Errorf("group source %q is neither a file nor an object id", source)
	}
	return ParseGroups(data)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// decodeBOM sniffs a byte-order mark and converts the data to UTF-8.
// Excel-saved CSV files commonly carry one. UTF-32 and UTF-7 are rejected
// rather than silently misread.
func decodeBOM(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0xFE, 0xFF}),
		bytes.HasPrefix(data, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return nil, errors.New("UTF-32 group files are not supported")
	case bytes.HasPrefix(data, []byte{0x2B, 0x2F, 0x76}):
		return nil, errors.New("UTF-7 group files are not supported")
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return data[3:], nil
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data[2:], binary.BigEndian), nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data[2:], binary.LittleEndian), nil
	}
	return data, nil
}

func decodeUTF16(b []byte, order binary.ByteOrder) []byte {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, order.Uint16(b[i:]))
	}
	return []byte(string(utf16.Decode(units)))
}
