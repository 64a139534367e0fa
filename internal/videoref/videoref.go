// Package videoref extracts video identifiers from the URL shapes users paste.
package videoref

import (
	"net/url"
	"strings"

	"github.com/bdougie/toxiclens/internal/models"
)

const op = "videoref.Parse"

// Parse extracts the video identifier from rawURL. It recognizes watch URLs
// with a v query parameter, short links whose path is the identifier, embed
// URLs, and otherwise falls back to the last path segment.
func Parse(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", models.ParseErr(op, "empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", models.ParseErr(op, "invalid url: "+err.Error())
	}

	var id string
	switch {
	case u.Path == "/watch":
		id = u.Query().Get("v")
	case strings.Contains(u.Host, "youtu.be"):
		id = strings.TrimLeft(u.Path, "/")
	case strings.Contains(u.Path, "/embed/"):
		id = strings.SplitN(u.Path, "/embed/", 2)[1]
	default:
		segments := strings.Split(u.Path, "/")
		id = segments[len(segments)-1]
	}

	id = strip(id)
	if id == "" {
		return "", models.ParseErr(op, "no video identifier in "+raw)
	}
	return id, nil
}

// Reference parses rawURL into a VideoReference.
func Reference(rawURL string) (models.VideoReference, error) {
	id, err := Parse(rawURL)
	return models.VideoReference{URL: rawURL, VideoID: id}, err
}

// strip drops anything after a residual '?' or '&' and any trailing path.
func strip(id string) string {
	if i := strings.IndexAny(id, "?&"); i >= 0 {
		id = id[:i]
	}
	id = strings.Trim(id, "/")
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	return strings.TrimSpace(id)
}
