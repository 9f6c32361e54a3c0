package acme

import (
	"path/filepath"
	"strings"
)

// Artifact file names written by --install-cert
const (
	FileCert      = "cert.cer"
	FileKey       = "key.key"
	FileFullchain = "fullchain.cer"
	FileCA        = "ca.cer"
)

// FileKinds maps the short kind used in download actions to a file name
var FileKinds = map[string]string{
	"cert":      FileCert,
	"key":       FileKey,
	"fullchain": FileFullchain,
	"ca":        FileCA,
}

// Files is the exported artifact layout of one domain
type Files struct {
	Dir       string
	Cert      string
	Key       string
	Fullchain string
	CA        string
}

// FilesFor derives the artifact paths for domain. The layout depends only
// on the export directory and the domain.
func FilesFor(exportDir, domain string) Files {
	dir := filepath.Join(exportDir, domain)
	return Files{
		Dir:       dir,
		Cert:      filepath.Join(dir, FileCert),
		Key:       filepath.Join(dir, FileKey),
		Fullchain: filepath.Join(dir, FileFullchain),
		CA:        filepath.Join(dir, FileCA),
	}
}

// DownloadURL joins the public base URL, the domain and a file name
func DownloadURL(baseURL, domain, file string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + domain + "/" + file
}

// Path returns the artifact path for one of the File* names
func (f Files) Path(name string) string {
	return filepath.Join(f.Dir, name)
}
