package claims

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/openchami/realmgate/pkg/metrics"
	"github.com/openchami/realmgate/pkg/token"
)

// ParseMode decides what happens when a role or permission claim is present
// but malformed.
type ParseMode string

const (
	// ParseLenient logs the malformed claim and treats it as empty.
	ParseLenient ParseMode = "lenient"
	// ParseStrict rejects the token.
	ParseStrict ParseMode = "strict"
)

// ParseModeFromString validates a configured mode. Empty means lenient.
func ParseModeFromString(s string) (ParseMode, error) {
	switch ParseMode(s) {
	case "", ParseLenient:
		return ParseLenient, nil
	case ParseStrict:
		return ParseStrict, nil
	default:
		return "", errors.NewInvalidConfig(fmt.Sprintf("unknown claim parse mode %q", s))
	}
}

// TokenValidator validates a signed token and returns its claims.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (jwt.MapClaims, error)
}

// RPTExchanger exchanges an access token for an RPT.
type RPTExchanger interface {
	Exchange(ctx context.Context, accessToken string) (token.RPT, error)
}

// Options configures an Augmentor.
type Options struct {
	Mode ParseMode

	// Exchanger enables the RPT path: tokens without an authorization claim
	// are exchanged and permissions are read from the validated RPT.
	Exchanger RPTExchanger
	// Validator checks the RPT. Required when Exchanger is set.
	Validator TokenValidator

	Metrics *metrics.Metrics
}

// Augmentor builds Identities from validated claims. It holds no mutable
// state and may be shared.
type Augmentor struct {
	mode      ParseMode
	exchanger RPTExchanger
	validator TokenValidator
	metrics   *metrics.Metrics
}

// NewAugmentor creates an Augmentor.
func NewAugmentor(opts Options) (*Augmentor, error) {
	mode, err := ParseModeFromString(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.Exchanger != nil && opts.Validator == nil {
		return nil, errors.NewInvalidConfig("rpt exchange requires a token validator")
	}
	return &Augmentor{
		mode:      mode,
		exchanger: opts.Exchanger,
		validator: opts.Validator,
		metrics:   opts.Metrics,
	}, nil
}

// Mode returns the configured parse mode.
func (a *Augmentor) Mode() ParseMode { return a.mode }

// Augment derives an Identity from the already validated claims of
// accessToken. Running it twice on the same input yields the same sets.
func (a *Augmentor) Augment(ctx context.Context, accessToken string, c jwt.MapClaims) (*Identity, error) {
	logger := logging.NewStructuredLoggerFromContext(ctx, "claims")

	id := &Identity{
		Claims:      c,
		Roles:       NewSet(),
		Permissions: NewSet(),
	}
	id.Subject, _ = c.GetSubject()
	if username, ok := c["preferred_username"].(string); ok {
		id.Username = username
	}

	roles, err := ExtractRoles(c)
	if err := a.handleParseError(logger, RealmRolesClaim, err); err != nil {
		return nil, err
	}
	id.Roles.Add(roles...)

	permSource, err := a.permissionSource(ctx, logger, accessToken, c)
	if err != nil {
		return nil, err
	}
	perms, err := ExtractPermissions(permSource)
	if err := a.handleParseError(logger, PermissionsClaim, err); err != nil {
		return nil, err
	}
	id.Permissions.Add(perms...)

	return id, nil
}

// permissionSource returns the claims permissions should be read from: the
// token itself, or a validated RPT when the RPT path is enabled and the
// token carries no authorization claim.
func (a *Augmentor) permissionSource(ctx context.Context, logger *logging.StructuredLogger, accessToken string, c jwt.MapClaims) (jwt.MapClaims, error) {
	if a.exchanger == nil {
		return c, nil
	}
	if _, present := c["authorization"]; present {
		return c, nil
	}

	rpt, err := a.exchanger.Exchange(ctx, accessToken)
	if err == nil {
		var rptClaims jwt.MapClaims
		rptClaims, err = a.validator.Validate(ctx, rpt.Value)
		if err == nil {
			return rptClaims, nil
		}
		// A bad RPT is a token problem, not an exchange outage.
		err = errors.Wrap(err, errors.ErrCodeInvalidToken, "rpt failed validation")
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if a.mode == ParseStrict {
		return nil, err
	}
	logger.WithError(err).Warn("rpt unavailable, continuing without permissions")
	return jwt.MapClaims{}, nil
}

func (a *Augmentor) handleParseError(logger *logging.StructuredLogger, claim string, err error) error {
	if err == nil {
		return nil
	}
	a.metrics.ClaimSkipped(claim)
	if a.mode == ParseStrict {
		return err
	}
	logger.WithError(err).Debug("skipping malformed claim")
	return nil
}
