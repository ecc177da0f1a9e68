package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// RequireAccessToken guards a route with a bearer access token. On
// success the current user is stored under the configured context
// key and the claims are attached to the request context.
func RequireAccessToken(tokens TokenService, repo RepositoryManager, cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return renderMiddlewareError(c, ErrTokenRequired)
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			return renderMiddlewareError(c, ErrInvalidToken)
		}

		// an action token never grants access to protected routes
		if claims.Purpose() != "" {
			return renderMiddlewareError(c, ErrInvalidToken)
		}

		user, err := repo.Users().GetByID(c.UserContext(), claims.UserID())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return renderMiddlewareError(c, ErrInvalidToken)
			}
			return renderMiddlewareError(c, err)
		}

		user.EnsureStatus()
		if err := statusAuthError(user.Status); err != nil {
			return renderMiddlewareError(c, err)
		}

		c.Locals(cfg.GetContextKey(), user)
		c.SetUserContext(WithClaimsContext(WithContext(c.UserContext(), user), claims))

		return c.Next()
	}
}

// CurrentUser returns the authenticated user stashed by
// RequireAccessToken.
func CurrentUser(c *fiber.Ctx, key string) (*User, error) {
	user, ok := c.Locals(key).(*User)
	if !ok || user == nil {
		return nil, ErrTokenRequired
	}
	return user, nil
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func renderMiddlewareError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 500 {
		code := richErr.TextCode
		if code == "" {
			code = "REQUEST_ERROR"
		}
		return c.Status(richErr.Code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    code,
				"message": richErr.Message,
			},
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "INTERNAL_ERROR",
			"message": "internal server error",
		},
	})
}
