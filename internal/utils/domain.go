package utils

import (
	"net"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

var ErrInvalidDomainName = errors.New("invalid domain name")

var domainLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// CanonicalDomain trims, lowercases and strips the trailing dot from name and
// rejects anything that is not a registrable hostname under a public suffix.
func CanonicalDomain(name string) (string, error) {
	domain := strings.ToLower(strings.TrimSpace(name))
	domain = strings.TrimSuffix(domain, ".")

	if domain == "" || len(domain) > 253 {
		return "", ErrInvalidDomainName
	}
	if net.ParseIP(domain) != nil {
		return "", errors.Wrap(ErrInvalidDomainName, "ip addresses are not domains")
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "", errors.Wrap(ErrInvalidDomainName, "domain must contain a dot")
	}
	for _, label := range labels {
		if !domainLabelRegex.MatchString(label) {
			return "", errors.Wrapf(ErrInvalidDomainName, "invalid label %q", label)
		}
	}

	suffix, icann := publicsuffix.PublicSuffix(domain)
	if !icann && !strings.Contains(suffix, ".") {
		return "", errors.Wrapf(ErrInvalidDomainName, "unknown public suffix %q", suffix)
	}
	if suffix == domain {
		return "", errors.Wrap(ErrInvalidDomainName, "domain is a public suffix")
	}

	return domain, nil
}

// DomainFromAddress returns the lowercased domain part of an address, or "".
func DomainFromAddress(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(address[at+1:], ">"))
}
