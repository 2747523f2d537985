package sentinel

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
)

// Inspection reasons reported in verdicts
const (
	reasonExtension = "dangerous extension"
	reasonOversized = "exceeds size limit"
	reasonMagic     = "executable signature"
	reasonKeyword   = "dangerous content"
	reasonUnread    = "unreadable, deleted as a precaution"
	reasonLocked    = "locked, skipped"
	reasonClean     = "passed inspection"
)

// dangerousExtensions covers executables, scripts and installers
var dangerousExtensions = map[string]bool{
	".exe": true,
	".msi": true,
	".bat": true,
	".cmd": true,
	".com": true,
	".scr": true,
	".pif": true,
	".vbs": true,
	".ps1": true,
	".jar": true,
	".dll": true,
	".app": true,
	".deb": true,
	".rpm": true,
}

// executable headers and the script shebang
var magicSignatures = [][]byte{
	{'M', 'Z'},
	{0x7f, 'E', 'L', 'F'},
	{'#', '!'},
}

var dangerKeywords = []string{
	"powershell -enc",
	"cmd.exe /c",
	"rm -rf /",
	"eval(base64",
	"mshta",
}

// inspector runs the short-circuiting file inspection pipeline
type inspector struct {
	fs          afs.Service
	maxFileSize int64
}

// inspect returns (delete, reason). Rules run in a fixed order and the
// first hit wins; content rules only run when the name and size rules
// pass.
func (i *inspector) inspect(ctx context.Context, path string, size int64) (bool, string) {
	ext := strings.ToLower(filepath.Ext(path))
	if dangerousExtensions[ext] {
		return true, fmt.Sprintf("%s %q", reasonExtension, ext)
	}

	if i.maxFileSize > 0 && size > i.maxFileSize {
		return true, fmt.Sprintf("%s (%d > %d bytes)", reasonOversized, size, i.maxFileSize)
	}

	data, err := i.fs.DownloadWithURL(ctx, path)
	if err != nil {
		if isLockError(err) {
			return false, reasonLocked
		}
		return true, reasonUnread
	}

	for _, sig := range magicSignatures {
		if bytes.HasPrefix(data, sig) {
			return true, reasonMagic
		}
	}

	content := strings.ToLower(string(data))
	for _, keyword := range dangerKeywords {
		if strings.Contains(content, keyword) {
			return true, fmt.Sprintf("%s %q", reasonKeyword, keyword)
		}
	}

	return false, reasonClean
}

// isLockError recognizes transient lock/contention failures, which mean
// "retry next poll" rather than "suspicious"
func isLockError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"lock", "busy", "in use", "used by another process", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
