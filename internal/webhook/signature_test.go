package webhook

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec-test"

func signedHeaders(id, ts string, body []byte) http.Header {
	h := http.Header{}
	h.Set(HeaderID, id)
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderSignature, SignatureHeader(Sign(testSecret, id, ts, body)))
	return h
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"type":"task_run.status"}`)
	sig := Sign(testSecret, "msg_1", "1700000000", body)
	assert.True(t, Verify(testSecret, "msg_1", "1700000000", body, "v1,"+sig))
}

func TestVerifyFlipsOnAnyChange(t *testing.T) {
	body := []byte(`{"a":1}`)
	header := "v1," + Sign(testSecret, "id", "ts", body)

	assert.False(t, Verify(testSecret, "id", "ts", []byte(`{"a":2}`), header), "body changed")
	assert.False(t, Verify(testSecret, "id", "ts", []byte(`{"a": 1}`), header), "whitespace changed")
	assert.False(t, Verify(testSecret, "id2", "ts", body, header), "id changed")
	assert.False(t, Verify(testSecret, "id", "ts2", body, header), "timestamp changed")
	assert.False(t, Verify("other", "id", "ts", body, header), "secret changed")
}

func TestVerifyMultipleSignatures(t *testing.T) {
	body := []byte(`{}`)
	good := Sign(testSecret, "id", "ts", body)

	assert.True(t, Verify(testSecret, "id", "ts", body, "v1,bogus v1,"+good))
	assert.True(t, Verify(testSecret, "id", "ts", body, "v2,xyz  v1,"+good))
	assert.False(t, Verify(testSecret, "id", "ts", body, "v2,"+good), "only v1 counts")
	assert.False(t, Verify(testSecret, "id", "ts", body, good), "missing version")
	assert.False(t, Verify(testSecret, "id", "ts", body, ""))
}

func TestVerifierCheck(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"type":"task_run.status"}`)

	d, err := v.Check(signedHeaders("msg_1", "1700000000", body), body)
	require.NoError(t, err)
	assert.Equal(t, "msg_1", d.ID)

	_, err = v.Check(signedHeaders("msg_1", "1700000000", body), []byte(`{}`))
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestVerifierMissingHeaders(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{}`)

	for _, name := range []string{HeaderID, HeaderTimestamp, HeaderSignature} {
		h := signedHeaders("id", "ts", body)
		h.Del(name)
		_, err := v.Check(h, body)
		assert.ErrorIs(t, err, ErrMissingHeaders, "without %s", name)
	}
}
