package loader

import "fmt"

// FormatError reports a file whose extension the loader cannot parse.
type FormatError struct {
	Path string
	Ext  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("loader: unsupported file format %q for %s (use .csv, .xls or .xlsx)", e.Ext, e.Path)
}

// LoadError reports a file that could not be read or parsed. No rows are
// returned alongside it.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loader: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
