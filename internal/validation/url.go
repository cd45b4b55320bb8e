package validation

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrURLMalformed = errors.New("no es una URL válida")
	ErrURLScheme    = errors.New("debe comenzar con http:// o https://")
	ErrURLHost      = errors.New("no indica un dominio")
	ErrURLNotWCA    = errors.New("debe ser una página de competencia de la WCA")
)

const wcaHost = "worldcubeassociation.org"

// CheckWebURL accepts absolute http and https links with a host.
func CheckWebURL(raw string) error {
	_, err := parseWebURL(raw)
	return err
}

// CheckWCACompetitionURL accepts links of the form
// https://www.worldcubeassociation.org/competitions/<id>.
func CheckWCACompetitionURL(raw string) error {
	u, err := parseWebURL(raw)
	if err != nil {
		return err
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	id, ok := strings.CutPrefix(strings.TrimSuffix(u.Path, "/"), "/competitions/")
	if host != wcaHost || !ok || id == "" || strings.Contains(id, "/") {
		return ErrURLNotWCA
	}
	return nil
}

func parseWebURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrURLMalformed
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrURLScheme
	}
	if u.Hostname() == "" {
		return nil, ErrURLHost
	}
	return u, nil
}
