package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

const (
	localUsername  = "username"
	localPrincipal = "principal"
)

type principalKey struct{}

// AuthMiddleware authenticates HTTP basic credentials and stores the caller's
// domain.Principal in the request locals and user context.
func AuthMiddleware(deps *Dependencies) []fiber.Handler {
	check := basicauth.New(basicauth.Config{
		Realm: "pharmacover",
		Authorizer: func(user, pass string) bool {
			_, err := deps.Users.Authenticate(context.Background(), user, pass)
			return err == nil
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="pharmacover"`)
			return errUnauthorized(c, "valid credentials are required")
		},
		ContextUsername: localUsername,
	})

	resolve := func(c *fiber.Ctx) error {
		username, _ := c.Locals(localUsername).(string)
		u, err := deps.Users.GetUser(c.UserContext(), username)
		if err != nil {
			return writeError(c, err)
		}
		p := domain.Principal{Username: u.Username, IsAdmin: u.IsAdmin}
		c.Locals(localPrincipal, p)
		ctx := context.WithValue(c.UserContext(), principalKey{}, p)
		c.SetUserContext(withLogger(ctx, LoggerFromCtx(ctx).With("user", p.Username)))
		return c.Next()
	}

	return []fiber.Handler{check, resolve}
}

// AdminOnly rejects non-admin principals.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !principal(c).IsAdmin {
			return errForbidden(c, "admin only")
		}
		return c.Next()
	}
}

func principal(c *fiber.Ctx) domain.Principal {
	p, _ := c.Locals(localPrincipal).(domain.Principal)
	return p
}

// PrincipalFromCtx returns the authenticated caller stored by AuthMiddleware.
func PrincipalFromCtx(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}
