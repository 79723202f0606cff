package fsadapter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/eventdrop/eventdrop/internal/common"
)

var (
	segmentRegexp = regexp.MustCompile(`^[a-zA-Z0-9 -]+$`)
)

// SplitFolder validates a /-delimited folder path and returns its segments.
// The empty string is the root. Segments may contain letters, digits, spaces
// and dashes; empty segments, trailing slashes and parent references are
// rejected with INVALID_FOLDER.
func SplitFolder(folder string) ([]string, error) {
	if folder == "" {
		return nil, nil
	}

	segments := strings.Split(folder, "/")
	for _, segment := range segments {
		if !segmentRegexp.MatchString(segment) {
			return nil, fmt.Errorf("%w: %s", common.ErrInvalidFolder, folder)
		}
	}

	return segments, nil
}

// ValidateFilename rejects names that could escape the folder: path
// separators, backslashes, parent references and the empty name.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", common.ErrInvalidFilename, name)
	}

	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", common.ErrInvalidFilename, name)
	}

	return nil
}

// dedupName inserts a numeric suffix before the extension: report.pdf -> report_2.pdf.
func dedupName(name string, n int) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	return fmt.Sprintf("%s_%d%s", base, n, ext)
}
