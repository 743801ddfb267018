package api

import (
	"fmt"
	"net/http"
	"strings"

	"vmledger/pkg/ledger"

	"github.com/gin-gonic/gin"
)

const signerKey = "signer"

// ParseKeys turns the configured token -> address map into signers.
func ParseKeys(keys map[string]string) (m map[string]ledger.Address, err error) {
	m = make(map[string]ledger.Address, len(keys))
	for token, s := range keys {
		a, perr := ledger.ParseAddress(s)
		if perr != nil {
			return nil, fmt.Errorf("auth key %s...: %w", short(token), perr)
		}
		m[token] = a
	}
	return
}

// Auth resolves the bearer token to the address requests are signed for.
// Signatures are out of scope, holding the token is the authorization.
func Auth(keys map[string]ledger.Address) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		signer, found := keys[strings.TrimSpace(token)]
		if !ok || !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}
		c.Set(signerKey, signer)
		c.Next()
	}
}

func signerOf(c *gin.Context) ledger.Address {
	return c.MustGet(signerKey).(ledger.Address)
}

func short(s string) string {
	if len(s) > 4 {
		return s[:4]
	}
	return s
}
