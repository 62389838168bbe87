// Package pathpolicy holds the pure path checks applied to archive entries.
// All functions work on forward-slash paths as they appear inside an archive,
// never on host filesystem paths.
package pathpolicy

import (
	"path"
	"regexp"
	"strings"
)

var drivePattern = regexp.MustCompile(`^[a-zA-Z]:`)

// Normalize converts backslashes to forward slashes and strips any leading
// "./" run and leading "/" characters. Normalize(Normalize(p)) == Normalize(p).
func Normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		default:
			return p
		}
	}
}

// IsTraversal reports whether p escapes its extraction root: a ".." segment,
// an absolute path, or a drive-letter prefix.
func IsTraversal(p string) bool {
	n := Normalize(p)
	if strings.HasPrefix(n, "/") || drivePattern.MatchString(n) {
		return true
	}
	for _, seg := range strings.Split(n, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// HasAllowedExtension reports whether the lower-cased extension of p is in
// allow. Allow-list entries may be written with or without the leading dot.
// Paths without an extension are never allowed.
func HasAllowedExtension(p string, allow []string) bool {
	ext := strings.ToLower(path.Ext(Normalize(p)))
	if ext == "" || ext == "." {
		return false
	}
	for _, candidate := range allow {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if !strings.HasPrefix(candidate, ".") {
			candidate = "." + candidate
		}
		if candidate == ext {
			return true
		}
	}
	return false
}

// IsBanned reports whether rel equals a banned entry or sits below one,
// compared case-insensitively.
func IsBanned(rel string, banned []string) bool {
	lower := strings.ToLower(Normalize(rel))
	for _, entry := range banned {
		entry = strings.ToLower(strings.TrimSuffix(Normalize(entry), "/"))
		if entry == "" {
			continue
		}
		if lower == entry || strings.HasPrefix(lower, entry+"/") {
			return true
		}
	}
	return false
}

// Relative strips root and the following slash from p. It returns p unchanged
// when root is empty.
func Relative(p, root string) string {
	p = Normalize(p)
	if root == "" {
		return p
	}
	if p == root {
		return ""
	}
	return strings.TrimPrefix(p, root+"/")
}

// Within reports whether p equals root or lies below it. An empty root
// contains everything.
func Within(p, root string) bool {
	if root == "" {
		return true
	}
	p = Normalize(p)
	return p == root || strings.HasPrefix(p, root+"/")
}
