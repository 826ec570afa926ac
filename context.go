package corelambda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ClientApplication carries the mobile/client SDK metadata embedded in the
// Lambda-Runtime-Client-Context header, per spec §3.
type ClientApplication struct {
	InstallationID string `json:"installation_id"`
	AppTitle       string `json:"app_title"`
	AppVersionCode string `json:"app_version_code"`
	AppPackageName string `json:"app_package_name"`
}

// ClientContext is the parsed form of the Lambda-Runtime-Client-Context
// header.
type ClientContext struct {
	Client ClientApplication `json:"client"`
	Env    map[string]string `json:"env"`
	Custom map[string]string `json:"custom"`
}

// CognitoIdentity is the parsed form of the Lambda-Runtime-Cognito-Identity
// header.
type CognitoIdentity struct {
	CognitoIdentityID     string `json:"cognito_identity_id"`
	CognitoIdentityPoolID string `json:"cognito_identity_pool_id"`
}

// LambdaContext is the per-invocation metadata the Runner attaches to the
// context.Context it hands the Handler, per spec §3/§4.4. Deadline is
// informational only: the core does not itself enforce it by cancelling the
// Handler's context, per spec §5 — the sole cancellation mechanism is the
// configured stop signal. A Handler that wants to race its own work against
// the deadline can read it from here and build its own timer.
type LambdaContext struct {
	AwsRequestID       string
	InvokedFunctionArn string
	Deadline           time.Time
	Identity           CognitoIdentity
	ClientContext      ClientContext
}

type contextKey struct{}

var lambdaContextKey = &contextKey{}

// NewContext attaches lc to parent.
func NewContext(parent context.Context, lc *LambdaContext) context.Context {
	return context.WithValue(parent, lambdaContextKey, lc)
}

// FromContext retrieves the LambdaContext a Runner attached, if any.
func FromContext(ctx context.Context) (*LambdaContext, bool) {
	lc, ok := ctx.Value(lambdaContextKey).(*LambdaContext)
	return lc, ok
}

// lambdaContextFromInvocation builds a LambdaContext from inv, decoding its
// optional JSON-encoded headers. A decode failure is reported the same way
// a Handler failure is: as an ordinary error that the Runner reports via
// report_failure, per spec §4.4 step 2.
func lambdaContextFromInvocation(inv *Invocation) (*LambdaContext, error) {
	lc := &LambdaContext{
		AwsRequestID:       inv.RequestID,
		InvokedFunctionArn: inv.InvokedFunctionArn,
		Deadline:           time.UnixMilli(inv.DeadlineMillisSinceEpoch),
	}

	if inv.CognitoIdentity != "" {
		if err := json.Unmarshal([]byte(inv.CognitoIdentity), &lc.Identity); err != nil {
			return nil, fmt.Errorf("parse cognito identity: %w", err)
		}
	}

	if inv.ClientContext != "" {
		if err := json.Unmarshal([]byte(inv.ClientContext), &lc.ClientContext); err != nil {
			return nil, fmt.Errorf("parse client context: %w", err)
		}
	}

	return lc, nil
}
