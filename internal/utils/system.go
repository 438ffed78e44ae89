package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	user, err := user.Current()
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	return os.Hostname()
}

var (
	invalidNodeChars = regexp.MustCompile(`[^a-z0-9.\-_]`)
	repeatedHyphens  = regexp.MustCompile(`-+`)
)

// SanitizeNodeName lowercases a name and strips characters the server does not
// accept in client names.
func SanitizeNodeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = invalidNodeChars.ReplaceAllString(name, "")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	return strings.Trim(name, "-.")
}

// DefaultNodeName derives a node name from the hostname, falling back to the
// username and finally to "node".
func DefaultNodeName() string {
	if hostname, err := GetHostname(); err == nil {
		if name := SanitizeNodeName(hostname); name != "" {
			return name
		}
	}
	if username, err := GetUsername(); err == nil {
		if name := SanitizeNodeName(username); name != "" {
			return name
		}
	}
	return "node"
}
