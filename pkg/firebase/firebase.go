// Package firebase verifies Firebase ID tokens for the identity middleware.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrNoCredentials means Firebase sign-in is not configured.
var ErrNoCredentials = errors.New("firebase credentials not provided")

const defaultVerifyTimeout = 5 * time.Second

var verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "firebase_token_verifications_total",
	Help: "Firebase ID token verifications by result.",
}, []string{"result"})

// Config selects the service account. CredentialsJSON wins over
// CredentialsPath so a secret can be injected through the environment.
type Config struct {
	CredentialsPath string
	CredentialsJSON string
	ProjectID       string
	VerifyTimeout   time.Duration
}

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Verifier checks ID tokens against Firebase Auth.
type Verifier struct {
	client  tokenVerifier
	timeout time.Duration
	log     *zap.Logger
}

// New initializes the Firebase app and its auth client.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Verifier, error) {
	appCfg, opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	v := newVerifier(client, cfg.VerifyTimeout, log)
	v.log.Info("Firebase auth client initialized.", zap.String("project_id", cfg.ProjectID))
	return v, nil
}

func newVerifier(client tokenVerifier, timeout time.Duration, log *zap.Logger) *Verifier {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{client: client, timeout: timeout, log: log.With(zap.String("component", "firebase"))}
}

func clientOptions(cfg Config) (*firebase.Config, []option.ClientOption, error) {
	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	switch {
	case cfg.CredentialsJSON != "":
		if !json.Valid([]byte(cfg.CredentialsJSON)) {
			return nil, nil, errors.New("firebase credentials JSON is malformed")
		}
		return appCfg, []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}, nil
	case cfg.CredentialsPath != "":
		if _, err := os.Stat(cfg.CredentialsPath); err != nil {
			return nil, nil, fmt.Errorf("firebase credentials file not found at %s: %w", cfg.CredentialsPath, err)
		}
		return appCfg, []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsPath)}, nil
	default:
		return nil, nil, ErrNoCredentials
	}
}

// VerifyIDToken checks idToken within the configured timeout.
func (v *Verifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		verificationsTotal.WithLabelValues("rejected").Inc()
		v.log.Debug("id token rejected", zap.Error(err))
		return nil, err
	}
	verificationsTotal.WithLabelValues("accepted").Inc()
	return token, nil
}
