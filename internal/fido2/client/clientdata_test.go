package client

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDataJSONKeyOrder(t *testing.T) {
	out := clientDataJSON("webauthn.create", []byte("challenge-bytes"), "https://example.com", false)

	wantChallenge := base64.RawURLEncoding.EncodeToString([]byte("challenge-bytes"))
	want := `{"type":"webauthn.create","challenge":"` + wantChallenge + `","origin":"https://example.com","crossOrigin":false}`
	assert.Equal(t, want, string(out))
}

func TestClientDataJSONCrossOriginTrue(t *testing.T) {
	out := clientDataJSON("webauthn.get", []byte("x"), "https://example.com", true)
	assert.Contains(t, string(out), `"crossOrigin":true`)
}

func TestClientDataJSONIsValidJSON(t *testing.T) {
	out := clientDataJSON("webauthn.get", []byte{0, 1, 2, 255}, `https://ex"ample.com`, false)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "webauthn.get", decoded["type"])
	assert.Equal(t, `https://ex"ample.com`, decoded["origin"])
	assert.Equal(t, false, decoded["crossOrigin"])
}

func TestClientDataJSONEscapesControlCharacters(t *testing.T) {
	out := clientDataJSON("webauthn.create", nil, "a\nb\tc\\d\"e", false)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "a\nb\tc\\d\"e", decoded["origin"])
}
