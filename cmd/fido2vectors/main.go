// Command fido2vectors prints WebAuthn registration/assertion response
// vectors as JSON, the way tools/gen_webauthn_credential and
// tools/gen_passkey_test_data did by hand-building CBOR and signing with a
// bare ecdsa.PrivateKey. Here the vectors come out of the real
// client/authenticator/memvault stack instead: "register" runs an actual
// CreateCredential ceremony and "login" an actual AssertCredential one, so
// a vector can never drift out of sync with what the library does.
//
// Since a virtual authenticator's private key never leaves it, a vector
// pair spanning two process invocations needs the registering process's
// vault state handed to the asserting one; -state does that, playing the
// role gen_webauthn_credential's -privkey/-credential-id flags did for its
// hand-rolled login path.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vaultkey/fido2-core/internal/fido2/authenticator"
	"github.com/vaultkey/fido2-core/internal/fido2/client"
	"github.com/vaultkey/fido2-core/internal/fido2/store"
	"github.com/vaultkey/fido2-core/internal/memvault"
)

func main() {
	action := flag.String("action", "", "Action: 'register' or 'login'")
	challenge := flag.String("challenge", "", "Challenge (base64url); random if omitted")
	origin := flag.String("origin", "https://localhost:8443", "Origin URL")
	rpID := flag.String("rp-id", "localhost", "Relying Party ID")
	rpName := flag.String("rp-name", "fido2-core vectors", "Relying Party display name")
	userID := flag.String("user-id", "demo-user", "User handle (raw bytes, used as-is)")
	userName := flag.String("user-name", "demo@example.com", "User name")
	residentKey := flag.String("resident-key", "required", "residentKey policy: required|preferred|discouraged")
	statePath := flag.String("state", "fido2vectors.state.json", "Path to the vault state file shared between register and login")
	webVaultURL := flag.String("web-vault-url", "https://vault.example.com", "Web vault origin, used only for the self-registration guard")

	flag.Parse()

	var err error
	switch *action {
	case "register":
		err = runRegister(*challenge, *origin, *rpID, *rpName, *userID, *userName, *residentKey, *statePath, *webVaultURL)
	case "login":
		err = runLogin(*challenge, *origin, *rpID, *statePath, *webVaultURL)
	default:
		log.Fatal("invalid -action, use 'register' or 'login'")
	}
	if err != nil {
		log.Fatalf("fido2vectors: %v", err)
	}
}

func runRegister(challengeB64, origin, rpID, rpName, userID, userName, residentKey, statePath, webVaultURL string) error {
	challenge, err := resolveChallenge(challengeB64)
	if err != nil {
		return err
	}

	vault, err := memvault.New(webVaultURL)
	if err != nil {
		return err
	}
	entryID, err := vault.Seed(store.Entry{Type: store.EntryTypeLogin, Username: userName})
	if err != nil {
		return fmt.Errorf("failed to seed vault entry: %w", err)
	}
	vault.ConfirmCipherID = entryID
	vault.ConfirmUV = true

	auth := authenticator.New(vault).WithUI(vault)
	c := client.New(auth, vault, vault, vault)

	res, err := c.CreateCredential(context.Background(), client.CreateCredentialParams{
		Origin:                  origin,
		SameOriginWithAncestors: true,
		Challenge:               challenge,
		RP:                      store.RPEntity{ID: rpID, Name: rpName},
		User:                    store.UserEntity{ID: []byte(userID), Name: userName, DisplayName: userName},
		ResidentKey:             residentKey,
	})
	if err != nil {
		return fmt.Errorf("CreateCredential failed: %w", err)
	}

	if err := saveState(statePath, vault.ExportState()); err != nil {
		return fmt.Errorf("failed to save vault state to %s: %w", statePath, err)
	}

	return printJSON(map[string]interface{}{
		"id":    base64.RawURLEncoding.EncodeToString(res.CredentialID),
		"rawId": base64.RawURLEncoding.EncodeToString(res.CredentialID),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(res.ClientDataJSON),
			"attestationObject": base64.RawURLEncoding.EncodeToString(res.AttestationObject),
			"transports":        res.Transports,
		},
	})
}

func runLogin(challengeB64, origin, rpID, statePath, webVaultURL string) error {
	challenge, err := resolveChallenge(challengeB64)
	if err != nil {
		return err
	}

	state, err := loadState(statePath)
	if err != nil {
		return fmt.Errorf("failed to load vault state from %s (run 'register' first): %w", statePath, err)
	}
	vault, err := memvault.LoadState(webVaultURL, state)
	if err != nil {
		return err
	}

	entries, err := vault.GetAllDecrypted(context.Background())
	if err != nil {
		return fmt.Errorf("failed to enumerate vault entries: %w", err)
	}
	for _, e := range entries {
		if e.FIDO2Credential != nil && e.FIDO2Credential.RPID == rpID && e.FIDO2Credential.Discoverable {
			vault.PickCipherID = e.ID
			vault.PickUV = true
			break
		}
	}

	auth := authenticator.New(vault).WithUI(vault)
	c := client.New(auth, vault, vault, vault)

	res, err := c.AssertCredential(context.Background(), client.AssertCredentialParams{
		Origin:                  origin,
		SameOriginWithAncestors: true,
		Challenge:               challenge,
		RPID:                    rpID,
		RequireUserPresence:     true,
	})
	if err != nil {
		return fmt.Errorf("AssertCredential failed: %w", err)
	}

	return printJSON(map[string]interface{}{
		"id":    res.ID,
		"rawId": base64.RawURLEncoding.EncodeToString(res.RawID),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(res.ClientDataJSON),
			"authenticatorData": base64.RawURLEncoding.EncodeToString(res.AuthenticatorData),
			"signature":         base64.RawURLEncoding.EncodeToString(res.Signature),
			"userHandle":        base64.RawURLEncoding.EncodeToString(res.UserHandle),
		},
	})
}

func resolveChallenge(challengeB64 string) ([]byte, error) {
	if challengeB64 == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate random challenge: %w", err)
		}
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(challengeB64)
	if err != nil {
		return nil, fmt.Errorf("invalid -challenge encoding: %w", err)
	}
	return b, nil
}

func saveState(path string, s memvault.State) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func loadState(path string) (memvault.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return memvault.State{}, err
	}
	var s memvault.State
	if err := json.Unmarshal(data, &s); err != nil {
		return memvault.State{}, err
	}
	return s, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
