// Package privacy scrubs URLs and filesystem paths from messages before they
// leave the process as telemetry.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	// URLs as they appear in loader errors: manifest URLs and frame sources.
	urlPattern = regexp.MustCompile(`\b(?:https?|file)://[^\s"'<>]+`)

	// Absolute paths under a home or user directory. A colon ends the path,
	// as in "open /home/x/manifest.json: no such file".
	homePathPattern = regexp.MustCompile(`(?:/home/|/Users/|[A-Za-z]:\\Users\\)[^\s"'<>:]+`)

	// dayN segments carry no personal data and keep reports readable.
	daySegmentPattern = regexp.MustCompile(`^day\d+$`)
)

// ScrubMessage replaces every URL and home directory path in message with an
// anonymized token.
func ScrubMessage(message string) string {
	message = urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	return homePathPattern.ReplaceAllStringFunc(message, anonymizeFilePath)
}

// AnonymizeURL converts a URL to a stable token. Equal URLs produce equal
// tokens; the scheme, host category and well-known path segments are kept
// readable.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{parsed.Scheme}
	if host := parsed.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := parsed.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		parts = append(parts, anonymizePath(parsed.Path))
	}

	return "url-" + strings.Join(parts, ":")
}

func anonymizeFilePath(path string) string {
	return "path:" + anonymizePath(path)
}

// categorizeHost reduces a host to its kind: localhost, a private or public
// address, or the top-level domain of a name.
func categorizeHost(host string) string {
	if host == "localhost" {
		return "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "localhost"
		case ip.IsPrivate(), ip.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}

	if i := strings.LastIndexByte(host, '.'); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}

// anonymizePath keeps the path's shape. Segments that are part of every
// showcase site stay as they are; all others are hashed.
func anonymizePath(path string) string {
	path = strings.Trim(strings.ReplaceAll(path, `\`, "/"), "/")
	if path == "" {
		return "root"
	}

	segments := strings.Split(path, "/")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if isPublicSegment(segment) {
			out = append(out, segment)
			continue
		}
		hash := sha256.Sum256([]byte(segment))
		out = append(out, fmt.Sprintf("seg-%x", hash[:4]))
	}
	return strings.Join(out, "/")
}

func isPublicSegment(segment string) bool {
	switch strings.ToLower(segment) {
	case "manifest.json", "index.html", "assets", "showcase.js", "showcase.css":
		return true
	}
	return daySegmentPattern.MatchString(strings.ToLower(segment))
}
