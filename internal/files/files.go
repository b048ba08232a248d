// Package files implements generic file tools missing from the standard library.
package files

import (
	"bufio"
	"iter"
	"os"
	"os/user"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// MaxLineSize is the longest line LineReader accepts, longer lines make the reader fail.
var MaxLineSize = 16 * 1024 * 1024

// Exists returns true if file or directory exists.
func Exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 || dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		userName, _, _ = strings.Cut(dir[1:], "/")
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return dir, errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return path.Join(usr.HomeDir, dir[1+len(userName):]), nil
}

// LineReader reads a text file one line at a time, through a buffered reader.
// The line terminator ("\n" or "\r\n") is not included.
type LineReader struct {
	filePath string
	f        *os.File
	scanner  *bufio.Scanner
	line     int
	closed   bool
}

// OpenLines opens filePath for line reading. The caller must Close it.
func OpenLines(filePath string) (*LineReader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", filePath)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, min(64*1024, MaxLineSize)), MaxLineSize)
	return &LineReader{filePath: filePath, f: f, scanner: scanner}, nil
}

// Next returns the next line, or false at the end of the file or on error (see Err).
func (r *LineReader) Next() (string, bool) {
	if r.closed || !r.scanner.Scan() {
		return "", false
	}
	r.line++
	return strings.TrimSuffix(r.scanner.Text(), "\r"), true
}

// Line returns the 1-based number of the last line returned by Next.
func (r *LineReader) Line() int {
	return r.line
}

// Err returns the first read error, if any.
func (r *LineReader) Err() error {
	if err := r.scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed reading %q after line %d", r.filePath, r.line)
	}
	return nil
}

// Close the underlying file. It is safe to call it more than once.
func (r *LineReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// IterLines iterates over the lines of filePath. On error it yields the error once and stops.
func IterLines(filePath string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		r, err := OpenLines(filePath)
		if err != nil {
			yield("", err)
			return
		}
		defer func() { _ = r.Close() }()
		for {
			line, ok := r.Next()
			if !ok {
				break
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield("", err)
		}
	}
}

// CountLines streams through filePath and returns its number of lines.
func CountLines(filePath string) (int, error) {
	count := 0
	for _, err := range IterLines(filePath) {
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}
