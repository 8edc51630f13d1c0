// Package i18nmsg renders the human-readable diagnostic strings carried by
// fidoerr.Error. These strings are for logs and developer-facing diagnostics
// only, so the message catalog only ever takes counts, lengths, and the
// caller's own rpId and origin host as template data, never raw credential
// or vault fields.
package i18nmsg

import (
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var bundle = newBundle()

func newBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.MustParseMessageFileBytes(messagesEN, "messages.en.json")
	return b
}

var messagesEN = []byte(`{
  "NoSupportedAlgorithm": "none of the caller's pubKeyCredParams entries use alg -7 (ES256)",
  "ExcludedCredentialMatch": "{{.Count}} credential(s) in the exclude list already exist in the user's vault",
  "UserCancelled": "the user-interface collaborator reported cancellation (no cipher selected)",
  "UserVerificationRequired": "user verification was required but the UI collaborator did not report userVerified",
  "UserPresenceRequired": "user presence was required but the selected credential was resolved silently",
  "NoMatchingCredential": "no vault entry matched the requested rpId / allow-list combination",
  "SelectedNotInCandidates": "the cipher chosen by the UI collaborator was not among the candidate entries",
  "OriginBlocked": "the origin's host is present in the autofill blocklist",
  "NotAuthenticated": "no user is authenticated in this session",
  "SelfRegistration": "origin equals the configured web vault URL",
  "CrossOriginAncestors": "sameOriginWithAncestors was false for a creation ceremony",
  "UserIDLength": "user.id must be between 1 and 64 bytes, got {{.Length}}",
  "NonHTTPSOrigin": "origin does not start with https://",
  "InvalidRPID": "rpId {{.RPID}} is not a registrable suffix of origin host {{.Host}}"
}`)

// Localizer is the package-level English localizer; the core is not
// user-facing, so only the default language bundle is loaded.
var Localizer = i18n.NewLocalizer(bundle, language.English.String())

// MustText renders messageID with the given template data, panicking only on
// a programmer error (unknown messageID), never on caller input.
func MustText(messageID string, data map[string]interface{}) string {
	return Localizer.MustLocalize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
}
