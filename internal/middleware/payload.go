package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/pkg/security"
)

// ContextWasEncrypted marks requests whose body arrived wrapped in an
// encrypted envelope.
const ContextWasEncrypted = "was_encrypted"

const encryptedPayloadField = "encryptedPayload"

// maxEnvelopeSize bounds how much body the filter will buffer while probing
// for the envelope shape.
const maxEnvelopeSize = 1 << 20

// EncryptedPayload transparently decrypts whole-body encrypted requests.
// A body that is a JSON object with the single string field
// "encryptedPayload" is decoded and replaced with its cleartext before any
// handler binds it; anything else passes through untouched. This must run
// before request binding.
func EncryptedPayload(codec *security.Codec, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeSize))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Next()
			return
		}
		raw, ok := envelope[encryptedPayloadField]
		if !ok || len(envelope) != 1 {
			c.Next()
			return
		}
		var protected string
		if err := json.Unmarshal(raw, &protected); err != nil {
			c.Next()
			return
		}

		var plain json.RawMessage
		if err := codec.Decode(protected, &plain); err != nil {
			logger.Warn().Str("path", c.Request.URL.Path).Msg("rejected undecryptable payload")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid encrypted payload"})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(plain))
		c.Request.ContentLength = int64(len(plain))
		c.Set(ContextWasEncrypted, true)
		c.Next()
	}
}
