package lti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const scoreContentType = "application/vnd.ims.lis.v1.score+json"

// AGSConfig configures the LTI 1.3 Assignment and Grade Services client.
type AGSConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// ScoresSuffix is appended to the line item URL, "/scores" by default.
	ScoresSuffix string
	Timeout      time.Duration
	// HTTPClient is used for both the token and the score calls when set.
	HTTPClient *http.Client
}

type agsScore struct {
	UserID           string  `json:"userId"`
	ScoreGiven       float64 `json:"scoreGiven"`
	ScoreMaximum     float64 `json:"scoreMaximum"`
	ActivityProgress string  `json:"activityProgress"`
	GradingProgress  string  `json:"gradingProgress"`
	Timestamp        string  `json:"timestamp"`
}

// AGSPublisher posts scores to a line item using a client-credentials bearer token.
type AGSPublisher struct {
	http   *http.Client
	suffix string
	logger *zap.Logger
	now    func() time.Time
}

// NewAGSPublisher constructs the publisher. Tokens are fetched lazily and cached until they expire.
func NewAGSPublisher(cfg AGSConfig, logger *zap.Logger) *AGSPublisher {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	h := cc.Client(ctx)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	suffix := cfg.ScoresSuffix
	if suffix == "" {
		suffix = "/scores"
	}
	return &AGSPublisher{http: h, suffix: suffix, logger: nopLogger(logger), now: time.Now}
}

// Publish posts the score of the outcome. The return id is the platform user id and the outcome
// URL the line item.
func (p *AGSPublisher) Publish(ctx context.Context, outcome Outcome) error {
	body, err := json.Marshal(agsScore{
		UserID:           outcome.ReturnID,
		ScoreGiven:       outcome.Score,
		ScoreMaximum:     outcome.Maximum,
		ActivityProgress: "Completed",
		GradingProgress:  "FullyGraded",
		Timestamp:        p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.scoresURL(outcome.OutcomeURL), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", scoreContentType)

	res, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("post score: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if err := checkStatus("post score", res); err != nil {
		return err
	}
	p.logger.Debug("score posted", zap.String("consumer_id", outcome.Consumer.ID), zap.String("user_id", outcome.ReturnID))
	return nil
}

func (p *AGSPublisher) scoresURL(lineItem string) string {
	if query := strings.Index(lineItem, "?"); query >= 0 {
		return strings.TrimRight(lineItem[:query], "/") + p.suffix + lineItem[query:]
	}
	return strings.TrimRight(lineItem, "/") + p.suffix
}
