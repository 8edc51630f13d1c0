// Package rpid implements the RP-ID validator: is rpId a registrable
// suffix of the caller's origin host? Public-suffix rejection (e.g. rpId =
// "com") is answered against golang.org/x/net/publicsuffix, the Go
// ecosystem's canonical ICANN suffix list, rather than a hand-maintained
// list of TLDs.
package rpid

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// IsValid reports whether rpID is a valid RP ID for origin:
//   - origin must parse as an HTTPS URL
//   - host == rpID, or host ends with "."+rpID
//   - rpID itself must not be a public suffix (e.g. "com")
//   - IP literal hosts are always rejected
func IsValid(rpID, origin string) bool {
	if rpID == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return false
	}

	host = strings.ToLower(host)
	rpID = strings.ToLower(rpID)

	if host != rpID && !strings.HasSuffix(host, "."+rpID) {
		return false
	}

	if isPublicSuffix(rpID) {
		return false
	}
	return true
}

func isPublicSuffix(domain string) bool {
	suffix, icann := publicsuffix.PublicSuffix(domain)
	return icann && suffix == domain
}
