package auth

import (
	"net/http"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"
)

const contextKey = "auth.session"

// Session is an authenticated caller.
type Session struct {
	UserID string
}

// Resolver resolves the caller's session from a request.
type Resolver interface {
	Resolve(r *http.Request) (Session, bool)
}

// GatewayResolver reads the user from the API Gateway authorizer when running behind the Lambda
// proxy, and from a trusted header set by the upstream gateway otherwise.
type GatewayResolver struct {
	header string
}

// NewGatewayResolver returns a resolver trusting header as a fallback. An empty header disables the fallback.
func NewGatewayResolver(header string) *GatewayResolver {
	return &GatewayResolver{header: header}
}

func (g *GatewayResolver) Resolve(r *http.Request) (Session, bool) {
	if apiCtx, ok := core.GetAPIGatewayContextFromContext(r.Context()); ok {
		if id := authorizerUserID(apiCtx.Authorizer); id != "" {
			return Session{UserID: id}, true
		}
	}
	if g.header != "" {
		if id := strings.TrimSpace(r.Header.Get(g.header)); id != "" {
			return Session{UserID: id}, true
		}
	}
	return Session{}, false
}

// authorizerUserID supports Cognito user pool authorizers (claims.sub) and Lambda authorizers (principalId).
func authorizerUserID(authorizer map[string]interface{}) string {
	if claims, ok := authorizer["claims"].(map[string]interface{}); ok {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub
		}
	}
	if id, ok := authorizer["principalId"].(string); ok {
		return id
	}
	return ""
}

// Require rejects requests without a session with 401 and stores the session on the gin context.
func Require(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := resolver.Resolve(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Set(contextKey, s)
		c.Next()
	}
}

// FromContext returns the session stored by Require.
func FromContext(c *gin.Context) (Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}
