package history

import "net/url"

// encodeName turns a qualified test name into a safe filename. "::" rarely
// causes trouble on POSIX filesystems, but NTFS and some container
// overlays reserve it, so the name is query-escaped (':' and '/' become
// percent escapes), a mapping decodeName reverses exactly.
func encodeName(qualifiedName string) string {
	return url.QueryEscape(qualifiedName)
}

func decodeName(filename string) string {
	name, err := url.QueryUnescape(filename)
	if err != nil {
		return filename
	}
	return name
}
